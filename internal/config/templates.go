package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
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

const serverTemplate = `port = 7600
admin_listen_addr = "127.0.0.1:7610"
cors_origins = ["http://localhost:3000"]
keepalive_interval_ms = 10000
keepalive_timeout_ms = 30000
`

const clientTemplate = `host = "localhost"
port = 7600
keepalive_interval_ms = 10000
keepalive_timeout_ms = 30000
max_connect_attempts = 0
`
