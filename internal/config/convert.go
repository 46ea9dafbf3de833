package config

import (
	"fmt"

	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/danmuck/sdapctl/internal/room"
)

// EngineConfig maps the client settings onto the room engine.
func (c ClientConfig) EngineConfig() (room.Config, error) {
	policy, err := room.ParseRejectPolicy(c.RejectPolicy)
	if err != nil {
		return room.Config{}, err
	}
	return room.Config{
		Username:        c.Username,
		HistoryCapacity: c.HistoryCapacity,
		RejectPolicy:    policy,
	}, nil
}

// TransportConfig returns the session settings with defaults applied.
func (c ClientConfig) TransportConfig() session.Config {
	return c.Session.WithDefaults()
}

// normalizeYAML rewrites yaml.v3 decode output into encoding/json shapes:
// integers become float64 and mapping keys become strings.
func normalizeYAML(v any) any {
	switch c := v.(type) {
	case map[string]any:
		for k, item := range c {
			c[k] = normalizeYAML(item)
		}
		return c
	case map[any]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range c {
			c[i] = normalizeYAML(item)
		}
		return c
	case int:
		return float64(c)
	case int64:
		return float64(c)
	case uint64:
		return float64(c)
	default:
		return v
	}
}
