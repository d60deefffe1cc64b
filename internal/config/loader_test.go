package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/enrich"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv(EnvBotToken, "")
	t.Setenv(EnvDatabase, "")

	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "travelrelay.db", cfg.Database.Path)
	assert.Equal(t, "telegram", cfg.Chat.Platform)
	assert.Equal(t, 2, cfg.Enrich.Workers)
	assert.Equal(t, enrich.DefaultEndpoints.OEBB, cfg.Enrich.OEBBURL)
	assert.Empty(t, cfg.Enrich.DBURL)
	assert.Empty(t, cfg.Chat.Token)
}

func TestParse_File(t *testing.T) {
	t.Setenv(EnvBotToken, " 123:abc ")
	t.Setenv(EnvDatabase, "")

	cfg, err := Parse([]byte(`
server:
  addr: "127.0.0.1:9000"
database:
  path: /var/lib/travelrelay/relay.db
chat:
  pollTimeoutSec: 60
enrich:
  workers: 4
  timeoutSec: 5
  timetableURL: https://timetable.example/api
  timezone: Europe/Vienna
  dbURL: https://db-gateway.example
links:
  baseURL: https://relay.example/s/
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "/var/lib/travelrelay/relay.db", cfg.Database.Path)
	assert.Equal(t, "123:abc", cfg.Chat.Token)
	assert.Equal(t, 60, cfg.Chat.PollTimeoutSec)
	assert.Equal(t, "https://relay.example/s", cfg.Links.BaseURL)

	ec, err := cfg.EnrichConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, ec.Workers)
	assert.Equal(t, 5*time.Second, ec.Timeout)
	assert.Equal(t, "https://timetable.example/api", ec.TimetableURL)
	assert.Equal(t, "https://relay.example/s", ec.ShortenerURL)
	assert.Equal(t, "Europe/Vienna", ec.Location.String())
	assert.Equal(t, "https://db-gateway.example", ec.Endpoints.DB)
	assert.Equal(t, enrich.DefaultEndpoints.NS, ec.Endpoints.NS)

	sc := cfg.ServerConfig()
	assert.Equal(t, "127.0.0.1:9000", sc.Addr)
}

func TestParse_EnvDatabase(t *testing.T) {
	t.Setenv(EnvDatabase, "/tmp/env.db")

	cfg, err := Parse([]byte("database:\n  path: file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "server:\n  port: 80\n"},
		{"bad url", "enrich:\n  oebbURL: not a url\n"},
		{"bad timezone", "enrich:\n  timezone: Mars/Olympus\n"},
		{"bad platform", "chat:\n  platform: discord\n"},
		{"too many workers", "enrich:\n  workers: 1000\n"},
		{"bad addr", "server:\n  addr: nowhere\n"},
		{"not yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvDatabase, "")
	path := filepath.Join(t.TempDir(), "travelrelay.yml")
	require.NoError(t, os.WriteFile(path, []byte("enrich:\n  workers: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Enrich.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
