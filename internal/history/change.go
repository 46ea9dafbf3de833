// Package history keeps a fixed-size ring of the most recently applied room
// changes, own and remote, together with the server-assigned identity of the
// latest one.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// DefaultCapacity matches the number of changes the reference client keeps.
const DefaultCapacity = 200

type Origin string

const (
	OriginOwn    Origin = "own"
	OriginRemote Origin = "remote"
)

// Stamp is a server timestamp kept verbatim. Servers send either a string or
// a number; both decode into the same textual form.
type Stamp string

func (s *Stamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Stamp(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return errors.New("history: stamp must be a string or number")
	}
	*s = Stamp(num.String())
	return nil
}

func (s Stamp) MarshalJSON() ([]byte, error) {
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil && json.Valid([]byte(raw)) {
		return []byte(raw), nil
	}
	return json.Marshal(string(s))
}

// Change is one applied mutation. Values are never modified after Record.
type Change struct {
	Origin     Origin `json:"origin"`
	ChangeID   string `json:"changeId"`
	ChangeTime Stamp  `json:"changeTime"`
	// Payload is the applied operation set for remote changes or the server
	// result entry for own changes.
	Payload any `json:"payload,omitempty"`
}
