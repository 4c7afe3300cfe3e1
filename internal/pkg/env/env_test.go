package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	t.Setenv("COURSEFOX_TEST_KEY", "from-os")
	Env = map[string]string{"COURSEFOX_TEST_KEY": "from-file"}
	assert.Equal(t, "from-file", GetEnv("COURSEFOX_TEST_KEY", "def"))

	Env = map[string]string{}
	assert.Equal(t, "from-os", GetEnv("COURSEFOX_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("COURSEFOX_MISSING_KEY", "def"))
}

func TestGetEnvIntAndDuration(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	Env = map[string]string{
		"WORKERS":     "7",
		"BAD_WORKERS": "seven",
		"TIMEOUT":     "3s",
		"BAD_TIMEOUT": "-1s",
	}
	assert.Equal(t, 7, GetEnvInt("WORKERS", 2))
	assert.Equal(t, 2, GetEnvInt("BAD_WORKERS", 2))
	assert.Equal(t, 2, GetEnvInt("NOT_SET", 2))
	assert.Equal(t, 3*time.Second, GetEnvDuration("TIMEOUT", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("BAD_TIMEOUT", time.Second))
}
