package global

import (
	"net"
	"strconv"

	"ChatCore/global/config"
	"ChatCore/logger"
	"ChatCore/service/nacos"
	"ChatCore/tools/errs"

	"go.uber.org/zap"
)

// Remote overlays the Nacos document on the file config and follows its changes.
type Remote struct {
	file     []byte
	watcher  *nacos.Watcher
	registry *nacos.Registry
}

// LoadRemote returns cfg unchanged when Nacos is disabled.
func LoadRemote(cfg *config.AppConfig, file []byte) (*config.AppConfig, *Remote, error) {
	if !cfg.Nacos.Enabled {
		return cfg, nil, nil
	}
	cli, err := nacos.NewConfigClient(cfg.Nacos)
	if err != nil {
		return nil, nil, err
	}
	w := nacos.NewWatcher(cli, cfg.Nacos.DataID, cfg.Nacos.Group)
	doc, err := w.Load()
	if err != nil {
		return nil, nil, err
	}
	merged, err := config.Parse(file, []byte(doc))
	if err != nil {
		return nil, nil, errs.WrapMsg(err, "remote config", "dataId", cfg.Nacos.DataID)
	}
	return merged, &Remote{file: file, watcher: w}, nil
}

// Watch applies the log level of every new remote document. Other fields
// take effect on restart.
func (r *Remote) Watch() error {
	return r.watcher.Watch(func(doc string) {
		next, err := config.Parse(r.file, []byte(doc))
		if err != nil {
			logger.Warn("ignoring invalid remote config", zap.Error(err))
			return
		}
		logger.SetLevel(next.Log.Level)
		logger.Info("remote config applied", zap.String("logLevel", logger.Level()))
	})
}

// Register announces the node when nacos.register is set.
func (r *Remote) Register(cfg *config.AppConfig) error {
	if !cfg.Nacos.Register {
		return nil
	}
	_, portStr, err := net.SplitHostPort(cfg.HTTP.Addr)
	if err != nil {
		return errs.ErrInvalidArgument.WrapMsg("bad http.addr", "addr", cfg.HTTP.Addr)
	}
	port, err := strconv.ParseUint(portStr, 10, 64)
	if err != nil {
		return errs.ErrInvalidArgument.WrapMsg("bad http port", "addr", cfg.HTTP.Addr)
	}
	cli, err := nacos.NewNamingClient(cfg.Nacos)
	if err != nil {
		return err
	}
	r.registry = nacos.NewRegistry(cli, cfg.Nacos.ServiceName, cfg.Nacos.Group, cfg.Nacos.IP, port,
		map[string]string{"node": cfg.Node.ID, "protocol": "http"})
	if err := r.registry.Register(); err != nil {
		return err
	}
	if peers, err := r.registry.Instances(); err == nil {
		logger.Info("nacos peers", zap.Strings("instances", peers))
	}
	return nil
}

func (r *Remote) Close() {
	if r == nil {
		return
	}
	r.watcher.Stop()
	if r.registry != nil {
		r.registry.Deregister()
	}
}
