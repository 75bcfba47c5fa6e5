// Package identity loads the runtime identity document an incarnation
// leaves behind, from the environment or the workspace.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// EnvInlineJSON carries the whole identity document inline.
	EnvInlineJSON = "NOSTRCHAN_IDENTITY_JSON"
	// EnvPath points at an identity document on disk, absolute or
	// relative to the workspace.
	EnvPath = "NOSTRCHAN_IDENTITY_PATH"
	// RuntimeFileName is the document an incarnation writes into the
	// workspace.
	RuntimeFileName = "identity_runtime.json"
)

// Document is a parsed identity document. The shape is owner defined;
// the accessors dig out the fields this process cares about.
type Document map[string]any

// Name returns the top level name field, if any.
func (d Document) Name() string {
	name, _ := d["name"].(string)
	return name
}

// PrivateKey returns the hex signing key at identity.keys.nostr_private_key,
// or "" when the path is absent.
func (d Document) PrivateKey() string {
	identity, ok := d["identity"].(map[string]any)
	if !ok {
		return ""
	}
	keys, ok := identity["keys"].(map[string]any)
	if !ok {
		return ""
	}
	key, _ := keys["nostr_private_key"].(string)
	return key
}

// Loader resolves the identity document for one workspace.
type Loader struct {
	Workspace string
}

// Load returns the identity document, trying the inline env var, then the
// env path, then the workspace runtime file. A missing identity is not an
// error: everything runs unnamed without one.
func (l Loader) Load() (Document, error) {
	if raw := os.Getenv(EnvInlineJSON); raw != "" {
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", EnvInlineJSON)
		}
		return doc, nil
	}

	if path := os.Getenv(EnvPath); path != "" {
		return l.loadFile(l.resolve(path))
	}

	runtime := filepath.Join(l.Workspace, RuntimeFileName)
	if _, err := os.Stat(runtime); err == nil {
		return l.loadFile(runtime)
	}
	return nil, nil
}

func (l Loader) loadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading identity file %s", path)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing identity file %s", path)
	}
	return doc, nil
}

func (l Loader) resolve(path string) string {
	if filepath.IsAbs(path) || l.Workspace == "" {
		return path
	}
	return filepath.Join(l.Workspace, path)
}
