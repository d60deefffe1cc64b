// Package config loads the travelrelay configuration from a YAML file and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/travelrelay/internal/enrich"
	"github.com/roach88/travelrelay/internal/server"
)

// Environment variables read by Load.
const (
	EnvBotToken = "TRAVELRELAY_BOT_TOKEN"
	EnvDatabase = "TRAVELRELAY_DB"
)

const (
	defaultAddr     = ":8080"
	defaultDatabase = "travelrelay.db"
	defaultPlatform = "telegram"
	defaultWorkers  = 2
	defaultTimeout  = 10
	defaultPoll     = 30
	defaultTimezone = "Europe/Berlin"
)

// Load reads the configuration file at path, then the environment. A
// .env file in the working directory is loaded first if present. An empty
// path yields the defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document and applies the
// environment and defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	cfg.Chat.Token = strings.TrimSpace(os.Getenv(EnvBotToken))
	if db := os.Getenv(EnvDatabase); db != "" {
		cfg.Database.Path = db
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = server.DefaultMaxBody
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabase
	}
	if c.Chat.Platform == "" {
		c.Chat.Platform = defaultPlatform
	}
	if c.Chat.PollTimeoutSec == 0 {
		c.Chat.PollTimeoutSec = defaultPoll
	}
	if c.Enrich.Workers == 0 {
		c.Enrich.Workers = defaultWorkers
	}
	if c.Enrich.TimeoutSec == 0 {
		c.Enrich.TimeoutSec = defaultTimeout
	}
	if c.Enrich.Timezone == "" {
		c.Enrich.Timezone = defaultTimezone
	}

	def := enrich.DefaultEndpoints
	setDefault(&c.Enrich.OEBBURL, def.OEBB)
	setDefault(&c.Enrich.DBURL, def.DB)
	setDefault(&c.Enrich.NSURL, def.NS)
	setDefault(&c.Enrich.VagonwebURL, def.Vagonweb)
	setDefault(&c.Enrich.RTTURL, def.RTT)

	c.Links.BaseURL = strings.TrimRight(c.Links.BaseURL, "/")
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// ServerConfig returns the HTTP server settings.
func (c Config) ServerConfig() server.Config {
	return server.Config{Addr: c.Server.Addr, MaxBody: c.Server.MaxBodyBytes}
}

// EnrichConfig returns the pipeline settings.
func (c Config) EnrichConfig() (enrich.Config, error) {
	loc, err := time.LoadLocation(c.Enrich.Timezone)
	if err != nil {
		return enrich.Config{}, fmt.Errorf("enrich timezone: %w", err)
	}
	return enrich.Config{
		Workers:      c.Enrich.Workers,
		Timeout:      time.Duration(c.Enrich.TimeoutSec) * time.Second,
		TimetableURL: c.Enrich.TimetableURL,
		ShortenerURL: c.Links.BaseURL,
		Location:     loc,
		Endpoints: enrich.Endpoints{
			OEBB:     c.Enrich.OEBBURL,
			DB:       c.Enrich.DBURL,
			NS:       c.Enrich.NSURL,
			Vagonweb: c.Enrich.VagonwebURL,
			RTT:      c.Enrich.RTTURL,
		},
	}, nil
}
