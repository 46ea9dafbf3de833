package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type discriminator struct {
	Type *string `json:"type"`
}

// Decode parses one inbound envelope. Unrecognised types decode to *Unknown
// with a nil error so callers can ignore them.
func Decode(data []byte) (Inbound, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrMalformedEnvelope
	}
	var head discriminator
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if head.Type == nil || strings.TrimSpace(*head.Type) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}

	var msg Inbound
	switch Kind(*head.Type) {
	case KindHello:
		msg = &Helloed{}
	case KindCreate:
		msg = &Created{}
	case KindGet:
		msg = &Acquired{}
	case KindSchema:
		msg = &SchemaAcquired{}
	case KindUpdate:
		msg = &Updated{}
	case KindSubscribe:
		msg = &Subscribed{}
	case KindUnsubscribe:
		msg = &Unsubscribed{}
	case KindChanges:
		msg = &Changes{}
	default:
		unknown := &Unknown{Type: *head.Type, Raw: append(json.RawMessage(nil), data...)}
		_ = json.Unmarshal(data, &unknown.Correlation)
		return unknown, nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, *head.Type, err)
	}
	return msg, nil
}
