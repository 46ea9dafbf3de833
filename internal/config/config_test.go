package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/danmuck/sdapctl/internal/room"
	"github.com/danmuck/sdapctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, name string, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadClientConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "client.toml", `url = "ws://sdap.example:9000"
room = "notes"
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultClientConfig()
	if cfg.URL != "ws://sdap.example:9000" || cfg.Room != "notes" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Username != def.Username || cfg.RejectPolicy != def.RejectPolicy {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Session.PingInterval != def.Session.PingInterval {
		t.Fatalf("ping interval=%s", cfg.Session.PingInterval)
	}
}

func TestLoadClientConfigOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "client.toml", `url = "wss://sdap.example"
username = "ana"
create = true
reject_policy = "rollback"
history_capacity = 50
ping_interval = "5s"
backoff_initial = "100ms"
max_connect_attempts = 3
security_mode = "production"

[tls]
ca_file = "/etc/sdap/ca.crt"
server_name = "sdap.internal"
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Create || cfg.Username != "ana" || cfg.HistoryCapacity != 50 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Session.PingInterval != 5*time.Second || cfg.Session.Backoff.InitialDelay != 100*time.Millisecond {
		t.Fatalf("session=%+v", cfg.Session)
	}
	if cfg.Session.MaxConnectAttempts != 3 || cfg.Session.SecurityMode != session.SecurityModeProduction {
		t.Fatalf("session=%+v", cfg.Session)
	}
	if cfg.Session.TLS.CAFile != "/etc/sdap/ca.crt" || cfg.Session.TLS.ServerName != "sdap.internal" {
		t.Fatalf("tls=%+v", cfg.Session.TLS)
	}

	engine, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engine.RejectPolicy != room.RejectRollback || engine.HistoryCapacity != 50 {
		t.Fatalf("engine=%+v", engine)
	}
}

func TestLoadClientConfigRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":   "url = \"ws://x\"\ncolour = \"blue\"\n",
		"bad duration":  "ping_interval = \"soon\"\n",
		"bad scheme":    "url = \"http://x\"\n",
		"bad policy":    "reject_policy = \"discard\"\n",
		"plain in prod": "url = \"ws://x\"\nsecurity_mode = \"production\"\n",
	}
	for name, body := range cases {
		path := writeFile(t, "client.toml", body)
		if _, err := LoadClientConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadDocumentFileAcceptsComments(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "doc.jsonc", `{
  // note
  "a": 1,
  "b": [true, "x",],
}`)
	doc, err := LoadDocumentFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]any{"a": float64(1), "b": []any{true, "x"}}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("doc=%#v", doc)
	}
}

func TestLoadSchemaFileYAMLAndJSON(t *testing.T) {
	testlog.Start(t)
	yamlPath := writeFile(t, "schema.yaml", `type: object
properties:
  n:
    type: integer
    minimum: 2
`)
	jsonPath := writeFile(t, "schema.json", `{"type":"object","properties":{"n":{"type":"integer","minimum":2}}}`)
	fromYAML, err := LoadSchemaFile(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	fromJSON, err := LoadSchemaFile(jsonPath)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if !reflect.DeepEqual(fromYAML, fromJSON) {
		t.Fatalf("yaml=%#v json=%#v", fromYAML, fromJSON)
	}
	minimum := fromYAML.(map[string]any)["properties"].(map[string]any)["n"].(map[string]any)["minimum"]
	if minimum != float64(2) {
		t.Fatalf("minimum=%#v", minimum)
	}
	if _, err := LoadSchemaFile(writeFile(t, "empty.yaml", "")); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range Kinds() {
		path := filepath.Join(dir, kind)
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s: %v", kind, err)
		}
		if err := Validate(path, kind); err != nil {
			t.Fatalf("validate %s: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Fatalf("expected overwrite refusal for %s, got %v", kind, err)
		}
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
