package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"json to stdout", LogConfig{Level: "debug", Format: "json", Output: "stdout"}, false},
		{"file output", LogConfig{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "cli.log")}, false},
		{"unknown level", LogConfig{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Setup(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Setup() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel)

	log.Debug().Msg("hidden")
	log.Info().Str("franchise_id", "franchise-madrid").Msg("Month closed")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "Month closed" || entry["franchise_id"] != "franchise-madrid" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}
