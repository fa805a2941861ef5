package nacos

import (
	"net"
	"strconv"

	"ChatCore/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// Config selects the Nacos cluster and the remote config document.
type Config struct {
	Enabled   bool     `json:"enabled"`
	Servers   []string `json:"servers"` // host:port
	Namespace string   `json:"namespace"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	TimeoutMs uint64   `json:"timeoutMs"`
	LogLevel  string   `json:"logLevel"`
	CacheDir  string   `json:"cacheDir"`
	LogDir    string   `json:"logDir"`

	DataID string `json:"dataId"`
	Group  string `json:"group"`

	// Register announces this node under ServiceName when set.
	Register    bool   `json:"register"`
	ServiceName string `json:"serviceName"`
	IP          string `json:"ip"` // advertised address
}

func DefaultConfig() Config {
	return Config{
		Servers:     []string{"127.0.0.1:8848"},
		Namespace:   "public",
		TimeoutMs:   5000,
		LogLevel:    "warn",
		CacheDir:    "nacos/cache",
		LogDir:      "nacos/log",
		DataID:      "chatcore.yaml",
		Group:       "DEFAULT_GROUP",
		ServiceName: "chatcore",
		IP:          "127.0.0.1",
	}
}

func serverConfigs(c Config) ([]constant.ServerConfig, error) {
	if len(c.Servers) == 0 {
		return nil, errs.ErrInvalidArgument.WrapMsg("nacos servers missing")
	}
	out := make([]constant.ServerConfig, 0, len(c.Servers))
	for _, s := range c.Servers {
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			return nil, errs.ErrInvalidArgument.WrapMsg("bad nacos server", "server", s)
		}
		p, err := strconv.ParseUint(port, 10, 64)
		if err != nil {
			return nil, errs.ErrInvalidArgument.WrapMsg("bad nacos port", "server", s)
		}
		out = append(out, *constant.NewServerConfig(host, p))
	}
	return out, nil
}

func clientConfig(c Config) *constant.ClientConfig {
	opts := []constant.ClientOption{
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(c.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(c.LogLevel),
		constant.WithCacheDir(c.CacheDir),
		constant.WithLogDir(c.LogDir),
	}
	if c.Username != "" {
		opts = append(opts, constant.WithUsername(c.Username), constant.WithPassword(c.Password))
	}
	return constant.NewClientConfig(opts...)
}

func params(c Config) (vo.NacosClientParam, error) {
	sc, err := serverConfigs(c)
	if err != nil {
		return vo.NacosClientParam{}, err
	}
	return vo.NacosClientParam{ClientConfig: clientConfig(c), ServerConfigs: sc}, nil
}

func NewConfigClient(c Config) (config_client.IConfigClient, error) {
	p, err := params(c)
	if err != nil {
		return nil, err
	}
	cli, err := clients.NewConfigClient(p)
	if err != nil {
		return nil, errs.WrapMsg(err, "nacos: config client")
	}
	return cli, nil
}

func NewNamingClient(c Config) (naming_client.INamingClient, error) {
	p, err := params(c)
	if err != nil {
		return nil, err
	}
	cli, err := clients.NewNamingClient(p)
	if err != nil {
		return nil, errs.WrapMsg(err, "nacos: naming client")
	}
	return cli, nil
}
