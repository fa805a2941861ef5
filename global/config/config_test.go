package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ChatCore/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
node:
  id: node-7
  snowflake: 7
jwt:
  secret: s3cret
  ttl: 1h
http:
  addr: ":9090"
  allowedOrigins: "https://a.example, https://b.example"
  pingInterval: 15
store:
  conversation: mongo
  projection: redis
  presenceTtl: 2m
  users:
    alice: [bob]
    bob: [alice]
fanout:
  mode: kafka
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: proj
`

func TestParseOverDefaults(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "node-7", cfg.Node.ID)
	assert.EqualValues(t, 7, cfg.Node.Snowflake)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.Equal(t, "HS256", cfg.JWT.Alg)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.HTTP.PingInterval)
	assert.Equal(t, 5*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, BackendMongo, cfg.Store.Conversation)
	assert.Equal(t, BackendRedis, cfg.Store.Projection)
	assert.Equal(t, BackendMemory, cfg.Store.Directory)
	assert.Equal(t, 2*time.Minute, cfg.Store.PresenceTTL)
	assert.Equal(t, []string{"bob"}, cfg.Store.Users["alice"])
	assert.Equal(t, FanoutKafka, cfg.Fanout.Mode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "proj", cfg.Kafka.Topic)
	assert.Equal(t, "chatcore-projection", cfg.Kafka.GroupID)
	assert.True(t, cfg.NeedsMongo())
	assert.True(t, cfg.NeedsRedis())
}

func TestLaterDocumentWins(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	remote := []byte("store:\n  projection: mongo\nbus:\n  buffer: 8\n")
	cfg, err := Parse([]byte(sample), remote)
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.Store.Projection)
	assert.Equal(t, BackendMongo, cfg.Store.Conversation)
	assert.Equal(t, 8, cfg.Bus.Buffer)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "from-env")
	t.Setenv("CHAT_NODE_ID", "node-env")
	t.Setenv("CHAT_ALLOWED_ORIGINS", "https://c.example")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "node-env", cfg.Node.ID)
	assert.Equal(t, []string{"https://c.example"}, cfg.HTTP.AllowedOrigins)
	assert.False(t, cfg.NeedsMongo())
}

func TestValidate(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	cases := map[string]string{
		"missing secret":  "node:\n  id: n\n",
		"bad projection":  "jwt:\n  secret: x\nstore:\n  projection: sqlite\n",
		"bad fanout":      "jwt:\n  secret: x\nfanout:\n  mode: carrier-pigeon\n",
		"zero bus buffer": "jwt:\n  secret: x\nbus:\n  buffer: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrInvalidArgument)
		})
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("jwt: [unterminated"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-7", cfg.Node.ID)
	assert.Equal(t, sample, string(raw))

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
