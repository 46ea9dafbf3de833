package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds lists the file kinds Template knows.
func Kinds() []string {
	return []string{"client", "document", "schema"}
}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "document":
		return documentTemplate, nil
	case "schema":
		return schemaTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as kind and reports the first problem found.
func Validate(path, kind string) error {
	var err error
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		_, err = LoadClientConfig(path)
	case "document":
		_, err = LoadDocumentFile(path)
	case "schema":
		_, err = LoadSchemaFile(path)
	default:
		err = fmt.Errorf("unknown config kind: %s", kind)
	}
	return err
}

const clientTemplate = `url = "ws://localhost:8080"
username = "anonymous"
room = ""
create = false
value_file = "cmd/sdapctl/document.jsonc"
schema_file = "cmd/sdapctl/schema.yaml"
reject_policy = "keep"
history_capacity = 200
metrics_addr = ""
log_level = "info"

connect_timeout = "5s"
handshake_timeout = "5s"
write_timeout = "10s"
ping_interval = "20s"
pong_timeout = "60s"
send_queue_size = 256
max_connect_attempts = 0
security_mode = "development"
backoff_initial = "250ms"
backoff_max = "5s"

[tls]
ca_file = ""
server_name = ""
insecure_skip_verify = false
`

const documentTemplate = `// initial value for a new room
{
  "title": "untitled",
  "tags": [],
  "settings": {
    "enabled": true,
    "limit": 10, // trailing commas are fine
  },
}
`

const schemaTemplate = `$schema: "http://json-schema.org/draft-04/schema#"
type: object
required: [title]
properties:
  title:
    type: string
  tags:
    type: array
    items:
      type: string
  settings:
    type: object
    properties:
      enabled:
        type: boolean
      limit:
        type: integer
        minimum: 0
`
