package config

// Config is the root of the configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Chat     ChatConfig     `yaml:"chat"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Links    LinksConfig    `yaml:"links"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"omitempty,hostname_port"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes" validate:"gte=0"`
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChatConfig configures the chat platform. The bot token is never read
// from the file, only from the environment.
type ChatConfig struct {
	Platform       string `yaml:"platform" validate:"omitempty,oneof=telegram"`
	Debug          bool   `yaml:"debug"`
	PollTimeoutSec int    `yaml:"pollTimeoutSec" validate:"gte=0,lte=600"`

	Token string `yaml:"-" json:"-"`
}

// EnrichConfig configures headsign and composition lookups.
type EnrichConfig struct {
	Workers      int    `yaml:"workers" validate:"gte=0,lte=64"`
	TimeoutSec   int    `yaml:"timeoutSec" validate:"gte=0,lte=300"`
	TimetableURL string `yaml:"timetableURL" validate:"omitempty,url"`
	Timezone     string `yaml:"timezone" validate:"omitempty,timezone"`

	OEBBURL     string `yaml:"oebbURL" validate:"omitempty,url"`
	DBURL       string `yaml:"dbURL" validate:"omitempty,url"`
	NSURL       string `yaml:"nsURL" validate:"omitempty,url"`
	VagonwebURL string `yaml:"vagonwebURL" validate:"omitempty,url"`
	RTTURL      string `yaml:"rttURL" validate:"omitempty,url"`
}

// LinksConfig configures short links.
type LinksConfig struct {
	// BaseURL is the public URL short links are served under, e.g.
	// https://relay.example/s. Empty disables shortening.
	BaseURL string `yaml:"baseURL" validate:"omitempty,url"`
}
