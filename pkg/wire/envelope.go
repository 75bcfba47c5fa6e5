// Package wire encodes and decodes NIP-01 websocket frames: the JSON
// arrays exchanged with a relay, parsed into one envelope type per label.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hivemesh/nostrchan/pkg/event"
)

// Frame labels defined by NIP-01.
const (
	LabelEvent  = "EVENT"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelOK     = "OK"
	LabelEOSE   = "EOSE"
	LabelNotice = "NOTICE"
	LabelClosed = "CLOSED"
)

// ErrMalformedFrame reports a frame that is not a well formed NIP-01
// array. Sessions log and skip these; they are never fatal.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Envelope is one parsed frame.
type Envelope interface {
	Label() string
}

// EventEnvelope carries an event. Relay to client frames name the
// subscription; client to relay frames leave it empty.
type EventEnvelope struct {
	SubscriptionID string
	Event          *event.Event
}

func (EventEnvelope) Label() string { return LabelEvent }

// ReqEnvelope is a client subscription request.
type ReqEnvelope struct {
	SubscriptionID string
	Filters        []Filter
}

func (ReqEnvelope) Label() string { return LabelReq }

// CloseEnvelope is a client request to end a subscription.
type CloseEnvelope struct {
	SubscriptionID string
}

func (CloseEnvelope) Label() string { return LabelClose }

// OKEnvelope is the relay's verdict on a published event.
type OKEnvelope struct {
	EventID  string
	Accepted bool
	Reason   string
}

func (OKEnvelope) Label() string { return LabelOK }

// EOSEEnvelope marks the end of stored events for a subscription.
type EOSEEnvelope struct {
	SubscriptionID string
}

func (EOSEEnvelope) Label() string { return LabelEOSE }

// NoticeEnvelope is a human readable relay message.
type NoticeEnvelope struct {
	Message string
}

func (NoticeEnvelope) Label() string { return LabelNotice }

// ClosedEnvelope reports a subscription the relay terminated.
type ClosedEnvelope struct {
	SubscriptionID string
	Reason         string
}

func (ClosedEnvelope) Label() string { return LabelClosed }

// UnknownEnvelope preserves frames with labels this module does not
// handle, so callers can log rather than drop them blind.
type UnknownEnvelope struct {
	FrameLabel string
}

func (u UnknownEnvelope) Label() string { return u.FrameLabel }

// ParseMessage decodes one frame into its envelope type. It understands
// both directions of the protocol; unknown labels come back as
// UnknownEnvelope, structural problems as ErrMalformedFrame.
func ParseMessage(data []byte) (Envelope, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array", ErrMalformedFrame)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedFrame)
	}

	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return nil, fmt.Errorf("%w: label is not a string", ErrMalformedFrame)
	}

	switch label {
	case LabelEvent:
		// ["EVENT", <event>] from clients, ["EVENT", <sub>, <event>] from
		// relays.
		if len(arr) != 2 && len(arr) != 3 {
			return nil, arityError(label, len(arr))
		}
		var env EventEnvelope
		payload := arr[1]
		if len(arr) == 3 {
			if err := json.Unmarshal(arr[1], &env.SubscriptionID); err != nil {
				return nil, fieldError(label, "subscription id")
			}
			payload = arr[2]
		}
		env.Event = &event.Event{}
		if err := json.Unmarshal(payload, env.Event); err != nil {
			return nil, fieldError(label, "event payload")
		}
		return env, nil

	case LabelReq:
		if len(arr) < 3 {
			return nil, arityError(label, len(arr))
		}
		var env ReqEnvelope
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); err != nil {
			return nil, fieldError(label, "subscription id")
		}
		for _, raw := range arr[2:] {
			var f Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, fieldError(label, "filter")
			}
			env.Filters = append(env.Filters, f)
		}
		return env, nil

	case LabelClose:
		if len(arr) != 2 {
			return nil, arityError(label, len(arr))
		}
		var env CloseEnvelope
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); err != nil {
			return nil, fieldError(label, "subscription id")
		}
		return env, nil

	case LabelOK:
		// The human readable reason is optional in the wild.
		if len(arr) != 3 && len(arr) != 4 {
			return nil, arityError(label, len(arr))
		}
		var env OKEnvelope
		if err := json.Unmarshal(arr[1], &env.EventID); err != nil {
			return nil, fieldError(label, "event id")
		}
		if err := json.Unmarshal(arr[2], &env.Accepted); err != nil {
			return nil, fieldError(label, "accepted flag")
		}
		if len(arr) == 4 {
			if err := json.Unmarshal(arr[3], &env.Reason); err != nil {
				return nil, fieldError(label, "reason")
			}
		}
		return env, nil

	case LabelEOSE:
		if len(arr) != 2 {
			return nil, arityError(label, len(arr))
		}
		var env EOSEEnvelope
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); err != nil {
			return nil, fieldError(label, "subscription id")
		}
		return env, nil

	case LabelNotice:
		if len(arr) != 2 {
			return nil, arityError(label, len(arr))
		}
		var env NoticeEnvelope
		if err := json.Unmarshal(arr[1], &env.Message); err != nil {
			return nil, fieldError(label, "message")
		}
		return env, nil

	case LabelClosed:
		if len(arr) != 3 {
			return nil, arityError(label, len(arr))
		}
		var env ClosedEnvelope
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); err != nil {
			return nil, fieldError(label, "subscription id")
		}
		if err := json.Unmarshal(arr[2], &env.Reason); err != nil {
			return nil, fieldError(label, "reason")
		}
		return env, nil

	default:
		return UnknownEnvelope{FrameLabel: label}, nil
	}
}

// ReqMessage builds ["REQ", <sub>, <filter>...].
func ReqMessage(subscriptionID string, filters ...Filter) ([]byte, error) {
	frame := make([]any, 0, 2+len(filters))
	frame = append(frame, LabelReq, subscriptionID)
	for _, f := range filters {
		frame = append(frame, f)
	}
	return json.Marshal(frame)
}

// EventMessage builds the client publish frame ["EVENT", <event>].
func EventMessage(ev *event.Event) ([]byte, error) {
	return json.Marshal([]any{LabelEvent, ev})
}

// CloseMessage builds ["CLOSE", <sub>].
func CloseMessage(subscriptionID string) ([]byte, error) {
	return json.Marshal([]any{LabelClose, subscriptionID})
}

func arityError(label string, n int) error {
	return fmt.Errorf("%w: %s frame with %d elements", ErrMalformedFrame, label, n)
}

func fieldError(label, field string) error {
	return fmt.Errorf("%w: %s %s", ErrMalformedFrame, label, field)
}
