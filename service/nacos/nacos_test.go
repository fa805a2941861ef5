package nacos

import (
	"testing"

	"ChatCore/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigs(t *testing.T) {
	c := DefaultConfig()
	c.Servers = []string{"10.0.0.1:8848", "nacos.internal:9848"}
	sc, err := serverConfigs(c)
	require.NoError(t, err)
	require.Len(t, sc, 2)
	assert.Equal(t, "10.0.0.1", sc[0].IpAddr)
	assert.EqualValues(t, 8848, sc[0].Port)
	assert.Equal(t, "nacos.internal", sc[1].IpAddr)
	assert.EqualValues(t, 9848, sc[1].Port)
}

func TestServerConfigsRejectsBadInput(t *testing.T) {
	for _, servers := range [][]string{nil, {"no-port"}, {"host:port"}} {
		c := DefaultConfig()
		c.Servers = servers
		_, err := serverConfigs(c)
		require.Error(t, err, "%v", servers)
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	}
}

func TestClientConfigCredentials(t *testing.T) {
	c := DefaultConfig()
	assert.Empty(t, clientConfig(c).Username)

	c.Username, c.Password = "chat", "pw"
	cc := clientConfig(c)
	assert.Equal(t, "chat", cc.Username)
	assert.Equal(t, "pw", cc.Password)
	assert.Equal(t, "public", cc.NamespaceId)
	assert.EqualValues(t, 5000, cc.TimeoutMs)
}
