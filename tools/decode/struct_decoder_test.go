package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string        `json:"name"`
	Port    int           `json:"port"`
	Timeout time.Duration `json:"timeout"`
	TTL     time.Duration `json:"ttl"`
	Servers []string      `json:"servers"`
	Enabled bool          `json:"enabled"`
}

func TestMapWeakTyping(t *testing.T) {
	out, err := Map[sample](map[string]any{
		"name":    "node-a",
		"port":    "8080",
		"timeout": "1500ms",
		"ttl":     30,
		"servers": "nats://a:4222, nats://b:4222",
		"enabled": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "node-a", out.Name)
	assert.Equal(t, 8080, out.Port)
	assert.Equal(t, 1500*time.Millisecond, out.Timeout)
	assert.Equal(t, 30*time.Second, out.TTL)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, out.Servers)
	assert.True(t, out.Enabled)
}

func TestIntoKeepsExisting(t *testing.T) {
	s := sample{Name: "keep", Port: 1}
	require.NoError(t, Into(map[string]any{"port": 2}, &s))
	assert.Equal(t, "keep", s.Name)
	assert.Equal(t, 2, s.Port)
}

func TestMapNil(t *testing.T) {
	_, err := Map[sample](nil)
	assert.Error(t, err)
}
