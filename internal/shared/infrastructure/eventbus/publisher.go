// Package eventbus carries domain events between the fulfillment
// pipeline and anything that reacts to it (the portfolio builder, email
// notifications). Events are notifications, not the source of truth;
// the domain record in Postgres is.
package eventbus

import "context"

// Publisher sends a serialized event to the bus under a routing key
// such as "domains.domain.activated".
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close releases the broker connection.
	Close() error
}
