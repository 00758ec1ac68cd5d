package application

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/eventbus"
)

// EventPortfolioPublished is emitted by the portfolio builder when a
// user publishes a portfolio.
const EventPortfolioPublished = "portfolios.portfolio.published"

type portfolioPublishedPayload struct {
	UserID        uuid.UUID `json:"user_id"`
	PortfolioID   uuid.UUID `json:"portfolio_id"`
	PortfolioType string    `json:"portfolio_type"`
}

// PortfolioPublishedConsumer routes a user's unrouted live domains to a
// freshly published portfolio. The fulfillment saga skips routing when
// the user has nothing published yet; this closes that gap the moment
// they publish.
type PortfolioPublishedConsumer struct {
	records domain.Repository
	routes  RouteActivator
	logger  *slog.Logger
}

// NewPortfolioPublishedConsumer creates the consumer.
func NewPortfolioPublishedConsumer(records domain.Repository, routes RouteActivator, logger *slog.Logger) *PortfolioPublishedConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortfolioPublishedConsumer{records: records, routes: routes, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (c *PortfolioPublishedConsumer) EventTypes() []string {
	return []string{EventPortfolioPublished}
}

// Handle routes every live, unrouted domain the user owns. A malformed
// payload is dropped; a repository error is returned so the bus retries.
func (c *PortfolioPublishedConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload portfolioPublishedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		c.logger.Error("discarding malformed portfolio event",
			"event_id", event.EventID,
			"error", err,
		)
		return nil
	}
	if payload.UserID == uuid.Nil || payload.PortfolioID == uuid.Nil {
		c.logger.Error("discarding portfolio event with missing IDs",
			"event_id", event.EventID,
		)
		return nil
	}

	records, err := c.records.ListByUser(ctx, payload.UserID)
	if err != nil {
		return err
	}

	ref := routingapp.PortfolioRef{ID: payload.PortfolioID, Type: payload.PortfolioType}
	for i := range records {
		rec := &records[i]
		if rec.PortfolioID != nil {
			continue
		}
		if rec.Status != domain.StatusActive && rec.Status != domain.StatusPendingVerification {
			continue
		}

		if _, err := c.routes.Activate(ctx, rec.Domain, rec.UserID, ref); err != nil {
			c.logger.Warn("route activation failed for published portfolio",
				"domain", rec.Domain,
				"user_id", rec.UserID,
				"error", err,
			)
			continue
		}
		rec.PortfolioID = &payload.PortfolioID
		if err := c.records.Update(ctx, rec); err != nil {
			c.logger.Warn("route recorded but record update failed",
				"domain", rec.Domain,
				"error", err,
			)
			continue
		}
		c.logger.Info("domain routed to published portfolio",
			"domain", rec.Domain,
			"user_id", rec.UserID,
			"portfolio_id", payload.PortfolioID,
		)
	}
	return nil
}
