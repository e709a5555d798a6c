package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.ServerPort)
	assert.Equal(t, "com", cfg.WorkbookBackend)
	assert.Equal(t, "Option_Chain", cfg.WorkbookSheet)
	assert.Equal(t, 15*time.Second, cfg.SettleWaitDuration())
	assert.Equal(t, 120*time.Second, cfg.LoginWaitDuration())
	assert.Equal(t, uint32(3), cfg.BreakerFailures())
	assert.False(t, cfg.Headless())

	h, m, err := cfg.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, 17, h)
	assert.Equal(t, 0, m)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"OCB_SERVER_PORT":  "9100",
		"OCB_SETTLE_WAIT":  "20s",
		"OCB_LOGIN_CUTOFF": "16:30",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.ServerPort)
	assert.Equal(t, 20*time.Second, cfg.SettleWaitDuration())
	h, m, err := cfg.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, 16, h)
	assert.Equal(t, 30, m)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad backend", map[string]string{"OCB_WORKBOOK_BACKEND": "sheets"}, "OCB_WORKBOOK_BACKEND"},
		{"bad cache", map[string]string{"OCB_CACHE_BACKEND": "memcache"}, "OCB_CACHE_BACKEND"},
		{"bad duration", map[string]string{"OCB_SETTLE_WAIT": "soon"}, "OCB_SETTLE_WAIT"},
		{"bad cutoff", map[string]string{"OCB_LOGIN_CUTOFF": "5pm"}, "OCB_LOGIN_CUTOFF"},
		{"totp without secret", map[string]string{"OCB_LOGIN_MODE": "totp", "OCB_KITE_USER_ID": "AB1234"}, "OCB_KITE_TOTP_SECRET"},
		{"redis without host", map[string]string{"OCB_CACHE_BACKEND": "redis"}, "OCB_REDIS_HOST"},
		{"postgres without dsn", map[string]string{"OCB_CACHE_BACKEND": "postgres"}, "OCB_PG_DSN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(lookupFrom(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStringMasksSecrets(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"OCB_KITE_PASSWORD":      "hunter2hunter2",
		"OCB_TELEGRAM_BOT_TOKEN": "123456:ABCDEF",
	}))
	require.NoError(t, err)

	out := cfg.String()
	assert.NotContains(t, out, "hunter2hunter2")
	assert.NotContains(t, out, "123456:ABCDEF")
	assert.True(t, strings.Contains(out, "hun*******"))
}
