package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Announcer publishes cluster members to an external etcd cluster (the
// master announces each node as it registers and withdraws it when it
// leaves) so operators' existing fleet-discovery tooling can see them, even though
// etcd plays no part in the bespoke membership protocol itself — membership
// is wire-native; this is purely an optional external mirror. The
// TTL-lease-plus-KeepAlive shape matches the standard etcd service-registry
// pattern of granting a lease, putting the key under it, then streaming
// KeepAlive to renew.
type Announcer struct {
	client *clientv3.Client
	prefix string
}

// announcedInstance is the JSON payload stored under the announce key.
type announcedInstance struct {
	ServerType string `json:"server_type"`
	ServerID   uint32 `json:"server_id"`
	Endpoints  string `json:"endpoints"`
}

// NewAnnouncer dials etcd at endpoints. prefix namespaces keys, e.g.
// "/pantyhose/fleet/".
func NewAnnouncer(endpoints []string, prefix string) (*Announcer, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("cluster.NewAnnouncer: %w", err)
	}
	return &Announcer{client: c, prefix: prefix}, nil
}

// Announce registers the given instance under a ttlSeconds lease and starts a
// background goroutine consuming KeepAlive responses to keep the lease
// alive for as long as ctx is not cancelled.
func (a *Announcer) Announce(ctx context.Context, serverType string, serverID uint32, endpoints string, ttlSeconds int64) error {
	lease, err := a.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return fmt.Errorf("cluster.Announce: grant lease: %w", err)
	}

	val, err := json.Marshal(announcedInstance{ServerType: serverType, ServerID: serverID, Endpoints: endpoints})
	if err != nil {
		return fmt.Errorf("cluster.Announce: marshal: %w", err)
	}

	key := fmt.Sprintf("%s%s/%d", a.prefix, serverType, serverID)
	if _, err := a.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("cluster.Announce: put: %w", err)
	}

	ch, err := a.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("cluster.Announce: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes the announce key for the given instance, used when that
// member leaves the cluster.
func (a *Announcer) Withdraw(ctx context.Context, serverType string, serverID uint32) error {
	key := fmt.Sprintf("%s%s/%d", a.prefix, serverType, serverID)
	_, err := a.client.Delete(ctx, key)
	return err
}

// Close releases the underlying etcd client connection.
func (a *Announcer) Close() error { return a.client.Close() }
