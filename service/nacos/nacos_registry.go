package nacos

import (
	"ChatCore/tools/errs"

	"github.com/golang/glog"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// Registry announces one chat node as an ephemeral instance.
type Registry struct {
	ServiceName string
	Group       string
	IP          string
	Port        uint64
	Metadata    map[string]string

	client naming_client.INamingClient
}

func NewRegistry(cli naming_client.INamingClient, serviceName, group, ip string, port uint64, metadata map[string]string) *Registry {
	if group == "" {
		group = "DEFAULT_GROUP"
	}
	return &Registry{
		ServiceName: serviceName,
		Group:       group,
		IP:          ip,
		Port:        port,
		Metadata:    metadata,
		client:      cli,
	}
}

func (r *Registry) Register() error {
	ok, err := r.client.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		ClusterName: "DEFAULT",
		Weight:      1,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata:    r.Metadata,
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos: register", "service", r.ServiceName)
	}
	if !ok {
		return errs.New("nacos: register returned false", "service", r.ServiceName)
	}
	glog.Infof("[nacos] registered %s %s:%d %v", r.ServiceName, r.IP, r.Port, r.Metadata)
	return nil
}

func (r *Registry) Deregister() {
	_, err := r.client.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		Cluster:     "DEFAULT",
		Ephemeral:   true,
	})
	if err != nil {
		glog.Warningf("[nacos] deregister %s: %v", r.ServiceName, err)
	}
}

// Instances lists the healthy nodes of the service.
func (r *Registry) Instances() ([]string, error) {
	list, err := r.client.SelectInstances(vo.SelectInstancesParam{
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		HealthyOnly: true,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "nacos: select instances", "service", r.ServiceName)
	}
	out := make([]string, 0, len(list))
	for _, in := range list {
		out = append(out, in.InstanceId)
	}
	return out, nil
}
