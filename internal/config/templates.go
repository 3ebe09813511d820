package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes an example client config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(clientTemplate), 0o600)
}

const clientTemplate = `host = "localhost"
port = 13579
username = "player"
password = ""
game = "tictactoe"
connect_timeout = "5s"

reconnect_max_attempts = 5
reconnect_initial_delay = "250ms"
reconnect_max_delay = "5s"
reconnect_multiplier = 2.0
reconnect_jitter = true
`
