package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hivemesh/nostrchan/pkg/bus"
	"github.com/hivemesh/nostrchan/pkg/channel"
	"github.com/hivemesh/nostrchan/pkg/identity"
	"github.com/hivemesh/nostrchan/pkg/incarnation"
	"github.com/hivemesh/nostrchan/pkg/logger"
	"github.com/hivemesh/nostrchan/pkg/nip19"
	"github.com/hivemesh/nostrchan/pkg/schnorr"
)

const envVerbose = "NOSTRCHAN_VERBOSE"

func main() {
	app := &cli.App{
		Name:  "nostrchan",
		Usage: "Nostr channel daemon for the hivemesh message bus",
		Description: `A daemon that bridges a Nostr relay onto the hivemesh message bus.

This daemon implements:
- BIP-340 signed text notes and NIP-04 encrypted direct messages
- A reconnecting relay subscription with echo suppression
- One-shot identity incarnation from an encrypted relay vault`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "relay",
				Usage:   "Relay websocket URL (ws:// or wss://)",
				EnvVars: []string{channel.EnvRelayURL},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{envVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "Generate a fresh identity key pair",
				Action: keygenCommand,
			},
			{
				Name:  "publish-identity",
				Usage: "Seal an identity document and store it on the relay",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "identity-id",
						Usage:    "Identity id, the \"d\" tag of the vault event",
						EnvVars:  []string{incarnation.EnvIdentityID},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "master-key",
						Usage:    "Master key that seals the vault",
						EnvVars:  []string{incarnation.EnvMasterKey},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Identity document JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name tag (defaults to the identity id)",
					},
					&cli.StringFlag{
						Name:    "private-key",
						Usage:   "Hex signing key (defaults to a fresh ephemeral key)",
						EnvVars: []string{channel.EnvPrivateKey},
					},
				},
				Action: publishCommand,
			},
			{
				Name:  "incarnate",
				Usage: "Fetch an identity vault and write it into the workspace",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "identity-id",
						Usage:    "Identity id to fetch",
						EnvVars:  []string{incarnation.EnvIdentityID},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "master-key",
						Usage:    "Master key that opens the vault",
						EnvVars:  []string{incarnation.EnvMasterKey},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "workspace",
						Usage:   "Directory the runtime document is written to",
						Value:   incarnation.DefaultWorkspace,
						EnvVars: []string{incarnation.EnvWorkspace},
					},
				},
				Action: incarnateCommand,
			},
			{
				Name:  "run",
				Usage: "Run the channel daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "private-key",
						Usage:   "Hex signing key (defaults to the incarnated identity, then a throwaway)",
						EnvVars: []string{channel.EnvPrivateKey},
					},
					&cli.StringFlag{
						Name:    "identity-id",
						Usage:   "Identity to incarnate at boot",
						EnvVars: []string{incarnation.EnvIdentityID},
					},
					&cli.StringFlag{
						Name:    "master-key",
						Usage:   "Master key for the boot incarnation",
						EnvVars: []string{incarnation.EnvMasterKey},
					},
					&cli.StringFlag{
						Name:    "workspace",
						Usage:   "Workspace directory",
						Value:   incarnation.DefaultWorkspace,
						EnvVars: []string{incarnation.EnvWorkspace},
					},
				},
				Action: runCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// keygenCommand handles the keygen subcommand
func keygenCommand(*cli.Context) error {
	sk, pk, err := schnorr.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}

	fmt.Println("🔑 Generated a new identity")
	fmt.Printf("private key: %s\n", sk)
	fmt.Printf("       nsec: %s\n", nsec)
	fmt.Printf(" public key: %s\n", pk)
	fmt.Printf("       npub: %s\n", npub)
	return nil
}

// publishCommand handles the publish-identity subcommand
func publishCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	raw, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read identity file: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse identity file: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventID, err := incarnation.Publish(ctx, incarnation.PublishConfig{
		RelayURL:   c.String("relay"),
		IdentityID: c.String("identity-id"),
		Name:       c.String("name"),
		MasterKey:  c.String("master-key"),
		PrivateKey: c.String("private-key"),
		Document:   doc,
		Logger:     l,
	})
	if err != nil {
		return fmt.Errorf("failed to publish identity: %w", err)
	}

	fmt.Printf("✅ Identity published, event id: %s\n", eventID)
	return nil
}

// incarnateCommand handles the incarnate subcommand
func incarnateCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := incarnation.Incarnate(ctx, incarnation.Config{
		RelayURL:   c.String("relay"),
		IdentityID: c.String("identity-id"),
		MasterKey:  c.String("master-key"),
		Workspace:  c.String("workspace"),
		Logger:     l,
	})
	if err != nil {
		return fmt.Errorf("failed to incarnate: %w", err)
	}

	fmt.Printf("✅ Identity written to: %s\n", path)
	return nil
}

// runCommand handles the run subcommand
func runCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workspace := c.String("workspace")

	// Incarnate first when an identity is configured. Failure is not
	// fatal: the channel can still run unnamed.
	if c.String("identity-id") != "" && c.String("master-key") != "" {
		if _, err := incarnation.Incarnate(ctx, incarnation.Config{
			RelayURL:   c.String("relay"),
			IdentityID: c.String("identity-id"),
			MasterKey:  c.String("master-key"),
			Workspace:  workspace,
			Logger:     l,
		}); err != nil {
			l.Sugar().Warnw("Incarnation failed, continuing without it", "error", err)
		}
	}

	privateKey := c.String("private-key")
	if privateKey == "" {
		doc, err := identity.Loader{Workspace: workspace}.Load()
		if err != nil {
			return fmt.Errorf("failed to load identity: %w", err)
		}
		if doc != nil {
			privateKey = doc.PrivateKey()
			if doc.Name() != "" {
				l.Sugar().Infow("Loaded identity", "name", doc.Name())
			}
		}
	}

	b := bus.NewMemoryBus(0)
	ch, err := channel.New(channel.Config{
		RelayURL:   c.String("relay"),
		PrivateKey: privateKey,
		Logger:     l,
	}, b)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	defer ch.Stop()

	npub, err := nip19.EncodePublicKey(ch.PubKey())
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}
	l.Sugar().Infow("Channel identity", "pubKey", ch.PubKey(), "npub", npub)

	// Print inbound messages; a real deployment attaches its own bus
	// consumer instead.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.Inbound():
				fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format(time.RFC3339), msg.SenderID, msg.Content)
			}
		}
	}()

	return ch.Start(ctx)
}
