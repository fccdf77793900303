package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"
)

type Config struct {
	Server       Server       `yaml:"server"`
	Auth         Auth         `yaml:"auth"`
	Push         Push         `yaml:"push"`
	Notification Notification `yaml:"notification"`
}

type Server struct {
	Bind           string        `yaml:"bind"`
	Environment    string        `yaml:"environment"` // development, production
	PostgresDsn    string        `yaml:"postgresDsn"`
	RedisAddr      string        `yaml:"redisAddr"`
	RedisPassword  string        `yaml:"redisPassword"`
	RedisDB        int           `yaml:"redisDB"`
	MemcachedAddr  string        `yaml:"memcachedAddr"`
	EnableTrace    bool          `yaml:"enableTrace"`
	TraceEndpoint  string        `yaml:"traceEndpoint"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	AllowOrigins   []string      `yaml:"allowOrigins"`
}

type Auth struct {
	BootstrapAdmins []string `yaml:"bootstrapAdmins"`
	SessionSecret   string   `yaml:"sessionSecret"`
	SessionIssuer   string   `yaml:"sessionIssuer"`
}

type Push struct {
	VapidPublicKey  string        `yaml:"vapidPublicKey"`
	VapidPrivateKey string        `yaml:"vapidPrivateKey"`
	Subscriber      string        `yaml:"subscriber"`
	TTL             int           `yaml:"ttl"` // seconds the push service keeps an undelivered message
	Timeout         time.Duration `yaml:"timeout"`
	GoneCacheTTL    time.Duration `yaml:"goneCacheTTL"`
}

type Notification struct {
	MaxParallel int `yaml:"maxParallel"`
}

// Load reads the YAML file at path, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}

	config.applyEnv(os.Getenv)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Server.PostgresDsn = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Server.RedisAddr = v
	}
	if v := getenv("SESSION_SECRET"); v != "" {
		c.Auth.SessionSecret = v
	}
	if v := getenv("VAPID_PRIVATE_KEY"); v != "" {
		c.Push.VapidPrivateKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Bind == "" {
		c.Server.Bind = ":8000"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 15 * time.Second
	}
	if c.Push.TTL <= 0 {
		c.Push.TTL = 60 * 60 * 24
	}
	if c.Push.Timeout <= 0 {
		c.Push.Timeout = 10 * time.Second
	}
	if c.Push.GoneCacheTTL <= 0 {
		c.Push.GoneCacheTTL = 30 * time.Minute
	}
	if c.Notification.MaxParallel <= 0 {
		c.Notification.MaxParallel = 16
	}
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	switch {
	case c.Server.PostgresDsn == "":
		return fmt.Errorf("config: server.postgresDsn (or DATABASE_URL) is required")
	case c.Server.RedisAddr == "":
		return fmt.Errorf("config: server.redisAddr (or REDIS_ADDR) is required")
	case len(c.Auth.SessionSecret) < 32:
		return fmt.Errorf("config: auth.sessionSecret (or SESSION_SECRET) must be at least 32 bytes")
	case c.Server.Environment != "development" && c.Server.Environment != "production":
		return fmt.Errorf("config: server.environment must be development or production, got %q", c.Server.Environment)
	case c.Server.EnableTrace && c.Server.TraceEndpoint == "":
		return fmt.Errorf("config: server.traceEndpoint is required when enableTrace is set")
	case (c.Push.VapidPublicKey == "") != (c.Push.VapidPrivateKey == ""):
		return fmt.Errorf("config: push.vapidPublicKey and push.vapidPrivateKey must be set together")
	}
	for _, email := range c.Auth.BootstrapAdmins {
		if !strings.Contains(email, "@") {
			return fmt.Errorf("config: auth.bootstrapAdmins entry %q is not an email", email)
		}
	}
	return nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c Config) PushEnabled() bool {
	return c.Push.VapidPublicKey != "" && c.Push.VapidPrivateKey != ""
}
