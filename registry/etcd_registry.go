// etcd-based implementation of the Registry interface.
//
// Instrument servers live under a common prefix:
//
//	Key:   /otii/servers/{farm}/{addr}
//	Value: JSON-encoded ServerInstance
//
// Registration uses TTL leases: when an agent crashes its lease expires and
// the entry vanishes, so clients never dial a dead server.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"

	"otii-client/logx"
)

const keyPrefix = "/otii/servers/"

// EtcdRegistry implements Registry on an etcd v3 cluster.
type EtcdRegistry struct {
	client *clientv3.Client
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register announces an instrument server with a TTL lease and starts
// background renewal. The entry auto-expires if renewal stops.
func (r *EtcdRegistry) Register(farm string, instance ServerInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, keyPrefix+farm+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	logx.Log.Debug().Str("farm", farm).Str("addr", instance.Addr).Msg("server registered")
	return nil
}

// Deregister removes a server entry.
func (r *EtcdRegistry) Deregister(farm string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+farm+"/"+addr)
	return err
}

// Discover lists the registered servers of a farm.
func (r *EtcdRegistry) Discover(farm string) ([]ServerInstance, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+farm+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	instances := make([]ServerInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServerInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch monitors a farm prefix and emits the updated server list on every
// change (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(farm string) <-chan []ServerInstance {
	ch := make(chan []ServerInstance, 1)
	go func() {
		watchChan := r.client.Watch(context.TODO(), keyPrefix+farm+"/", clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change rather than applying
			// individual events.
			instances, err := r.Discover(farm)
			if err != nil {
				continue
			}
			ch <- instances
		}
	}()
	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
