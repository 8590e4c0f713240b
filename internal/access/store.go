// Package access records every request handled by the gateway.
package access

import (
	"context"

	"github.com/tkingovr/routegate/api"
)

// Store persists access records and serves them back to the admin server.
type Store interface {
	// Write appends an access record.
	Write(ctx context.Context, record *api.AccessRecord) error

	// Query retrieves the records matching the filter, oldest first.
	Query(ctx context.Context, filter api.QueryFilter) ([]*api.AccessRecord, error)

	// Stats returns aggregate statistics.
	Stats(ctx context.Context) (*api.AccessStats, error)

	// Subscribe returns a channel that receives new records as they are
	// written. The returned function cancels the subscription.
	Subscribe(ctx context.Context) (<-chan *api.AccessRecord, func())

	// Close flushes and releases the store.
	Close() error
}
