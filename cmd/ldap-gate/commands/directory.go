package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/isometry/ldap-gate/internal/config"
	"github.com/isometry/ldap-gate/internal/ldap"
)

// ConnectTimeout bounds the startup connection test.
const ConnectTimeout = 5 * time.Second

// newClient is replaced in tests.
var newClient = ldap.NewClient

// directory bundles a client with the caches built on it.
type directory struct {
	client ldap.Client
	users  *ldap.UserCache
	groups *ldap.GroupCache
}

// openDirectory creates a client and verifies it can bind within
// ConnectTimeout. The caches are created empty.
func openDirectory(ctx context.Context, cfg *config.Config) (*directory, error) {
	conn, err := cfg.Connection()
	if err != nil {
		return nil, err
	}

	client, err := newClient(ctx, conn)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("directory connection test failed: %w", err)
	}

	opts := cfg.CacheOptions()
	return &directory{
		client: client,
		users:  ldap.NewUserCache(client, opts),
		groups: ldap.NewGroupCache(client, opts),
	}, nil
}

func (d *directory) Close() error {
	return d.client.Close()
}
