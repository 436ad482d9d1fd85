package sketch

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the one-byte discriminant that prefixes every wire payload.
type Kind byte

const (
	// KindAnchor tags a single Anchor delta
	KindAnchor Kind = 0x01

	// KindSnapshot tags a full MapSnapshot
	KindSnapshot Kind = 0x02
)

func (k Kind) String() string {
	switch k {
	case KindAnchor:
		return "anchor"
	case KindSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

var (
	// ErrMalformed indicates a truncated or corrupt payload
	ErrMalformed = errors.New("malformed payload")

	// ErrUnknownKind indicates a well-formed payload under an unrecognized kind tag
	ErrUnknownKind = errors.New("unknown payload kind")
)

// DecodeError reports why a payload could not be decoded.
// Use errors.Is with ErrMalformed or ErrUnknownKind to classify it.
type DecodeError struct {
	Kind   Kind  // Tag byte as received (zero for empty input)
	Reason error // ErrMalformed or ErrUnknownKind
	Err    error // Underlying cause, if any
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Reason)
}

// Unwrap exposes both the classification and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Message is a decoded payload. Exactly one of Anchor or Snapshot is set, selected by Kind.
type Message struct {
	Kind     Kind
	Anchor   *Anchor
	Snapshot *MapSnapshot
}

// AnchorMessage wraps an anchor in a Message.
func AnchorMessage(a Anchor) Message {
	return Message{Kind: KindAnchor, Anchor: &a}
}

// SnapshotMessage wraps a snapshot in a Message.
func SnapshotMessage(s MapSnapshot) Message {
	return Message{Kind: KindSnapshot, Snapshot: &s}
}

// EncodeAnchor serializes an anchor into a tagged payload.
// Encoding is deterministic for a given anchor.
func EncodeAnchor(a Anchor) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anchor: %w", err)
	}
	return frame(KindAnchor, a)
}

// EncodeSnapshot serializes a map snapshot, thumbnail included, into a tagged payload.
func EncodeSnapshot(s MapSnapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return frame(KindSnapshot, s)
}

// Encode serializes whichever entity the message carries.
func Encode(m Message) ([]byte, error) {
	switch m.Kind {
	case KindAnchor:
		if m.Anchor == nil {
			return nil, fmt.Errorf("anchor message has no anchor")
		}
		return EncodeAnchor(*m.Anchor)
	case KindSnapshot:
		if m.Snapshot == nil {
			return nil, fmt.Errorf("snapshot message has no snapshot")
		}
		return EncodeSnapshot(*m.Snapshot)
	default:
		return nil, fmt.Errorf("cannot encode %s", m.Kind)
	}
}

// Decode parses a tagged payload into a Message.
// Failures are always *DecodeError; the caller decides whether to log and drop.
func Decode(payload []byte) (Message, error) {
	if len(payload) < 2 {
		var k Kind
		if len(payload) == 1 {
			k = Kind(payload[0])
		}
		return Message{}, &DecodeError{Kind: k, Reason: ErrMalformed, Err: fmt.Errorf("payload too short: %d bytes", len(payload))}
	}

	kind, body := Kind(payload[0]), payload[1:]
	if !json.Valid(body) {
		return Message{}, &DecodeError{Kind: kind, Reason: ErrMalformed, Err: fmt.Errorf("body is not valid JSON")}
	}

	switch kind {
	case KindAnchor:
		var a Anchor
		if err := unmarshalStrict(body, &a); err != nil {
			return Message{}, &DecodeError{Kind: kind, Reason: ErrMalformed, Err: err}
		}
		if err := a.Validate(); err != nil {
			return Message{}, &DecodeError{Kind: kind, Reason: ErrMalformed, Err: err}
		}
		return AnchorMessage(a), nil

	case KindSnapshot:
		var s MapSnapshot
		if err := unmarshalStrict(body, &s); err != nil {
			return Message{}, &DecodeError{Kind: kind, Reason: ErrMalformed, Err: err}
		}
		if err := s.Validate(); err != nil {
			return Message{}, &DecodeError{Kind: kind, Reason: ErrMalformed, Err: err}
		}
		return SnapshotMessage(s), nil

	default:
		return Message{}, &DecodeError{Kind: kind, Reason: ErrUnknownKind}
	}
}

func frame(kind Kind, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	payload := make([]byte, 0, len(body)+1)
	payload = append(payload, byte(kind))
	return append(payload, body...), nil
}

// unmarshalStrict requires the body to be a JSON object so that scalars and arrays
// under a valid tag are reported as malformed rather than silently zero-valued.
func unmarshalStrict(body []byte, v any) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return fmt.Errorf("body is not a JSON object: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal body: %w", err)
	}
	return nil
}
