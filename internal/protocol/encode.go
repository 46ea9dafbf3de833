package protocol

import (
	"encoding/json"
)

// Encode validates msg and renders it as a JSON envelope with the type
// discriminator as its first member.
func Encode(msg Outbound) ([]byte, error) {
	if msg == nil {
		return nil, ErrInvalidMessage
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return withType(msg.Kind(), body)
}

func withType(kind Kind, body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != '{' || body[len(body)-1] != '}' {
		return nil, ErrMalformedEnvelope
	}
	typ, err := json.Marshal(string(kind))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(typ)+9)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}
