package nacos

import (
	"sync"

	"ChatCore/tools/errs"

	"github.com/golang/glog"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// Watcher keeps the latest content of one remote config document.
type Watcher struct {
	cli    config_client.IConfigClient
	dataID string
	group  string

	mu      sync.RWMutex
	current string
}

func NewWatcher(cli config_client.IConfigClient, dataID, group string) *Watcher {
	return &Watcher{cli: cli, dataID: dataID, group: group}
}

// Load fetches the document once.
func (w *Watcher) Load() (string, error) {
	content, err := w.cli.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", errs.WrapMsg(err, "nacos: get config", "dataId", w.dataID, "group", w.group)
	}
	w.set(content)
	return content, nil
}

// Watch calls onChange with every new version of the document until Stop.
func (w *Watcher) Watch(onChange func(content string)) error {
	err := w.cli.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(_, _, dataID, data string) {
			glog.Infof("[nacos] config changed dataId=%s", dataID)
			w.set(data)
			if onChange != nil {
				onChange(data)
			}
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos: listen config", "dataId", w.dataID, "group", w.group)
	}
	return nil
}

func (w *Watcher) Stop() {
	if err := w.cli.CancelListenConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group}); err != nil {
		glog.Warningf("[nacos] cancel listen dataId=%s: %v", w.dataID, err)
	}
}

func (w *Watcher) set(data string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = data
}

func (w *Watcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
