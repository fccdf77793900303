package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  bind: ":9000"
  environment: production
  postgresDsn: "host=localhost user=postgres dbname=flock"
  redisAddr: "localhost:6379"
  memcachedAddr: "localhost:11211"
  requestTimeout: 5s
auth:
  bootstrapAdmins:
    - admin@x.com
  sessionSecret: "0123456789abcdef0123456789abcdef"
push:
  subscriber: ops@x.com
notification:
  maxParallel: 4
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "SESSION_SECRET", "VAPID_PRIVATE_KEY"} {
		t.Setenv(key, "")
	}

	conf, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", conf.Server.Bind)
	assert.Equal(t, 5*time.Second, conf.Server.RequestTimeout)
	assert.Equal(t, []string{"admin@x.com"}, conf.Auth.BootstrapAdmins)
	assert.Equal(t, 4, conf.Notification.MaxParallel)
	assert.Equal(t, 10*time.Second, conf.Push.Timeout)
	assert.Equal(t, 86400, conf.Push.TTL)
	assert.False(t, conf.PushEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override")
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 40))
	t.Setenv("VAPID_PRIVATE_KEY", "priv")

	body := strings.Replace(sampleConfig, "  subscriber: ops@x.com", "  subscriber: ops@x.com\n  vapidPublicKey: pub", 1)
	conf, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, "postgres://override", conf.Server.PostgresDsn)
	assert.Equal(t, strings.Repeat("s", 40), conf.Auth.SessionSecret)
	assert.True(t, conf.PushEnabled())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.Server.PostgresDsn = "dsn"
		c.Server.RedisAddr = "localhost:6379"
		c.Auth.SessionSecret = strings.Repeat("k", 32)
		c.applyDefaults()
		return c
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"missing dsn":        func(c *Config) { c.Server.PostgresDsn = "" },
		"short secret":       func(c *Config) { c.Auth.SessionSecret = "short" },
		"bad environment":    func(c *Config) { c.Server.Environment = "staging" },
		"trace sans target":  func(c *Config) { c.Server.EnableTrace = true },
		"half vapid pair":    func(c *Config) { c.Push.VapidPublicKey = "pub" },
		"bad bootstrap user": func(c *Config) { c.Auth.BootstrapAdmins = []string{"root"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
