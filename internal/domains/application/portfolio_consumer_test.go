package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftfolio/craftfolio/internal/domains/domain"
	routingdomain "github.com/craftfolio/craftfolio/internal/routing/domain"
	"github.com/craftfolio/craftfolio/internal/shared/infrastructure/eventbus"
)

func publishedEvent(t *testing.T, userID, portfolioID uuid.UUID) *eventbus.ConsumedEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"user_id":        userID,
		"portfolio_id":   portfolioID,
		"portfolio_type": "developer",
	})
	require.NoError(t, err)
	return &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: EventPortfolioPublished,
		Payload:    payload,
	}
}

func seedRecord(t *testing.T, repo *fakeRecordRepo, userID uuid.UUID, name string, status domain.Status) *domain.Record {
	t.Helper()
	rec := &domain.Record{
		ID:     uuid.New(),
		UserID: userID,
		Domain: name,
		Type:   domain.TypePlatformPurchased,
		Status: status,
		Stage:  domain.StageDone,
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestPortfolioPublished_RoutesUnroutedDomains(t *testing.T) {
	repo := newFakeRecordRepo()
	routes := &fakeRoutes{}
	userID := uuid.New()
	portfolioID := uuid.New()

	active := seedRecord(t, repo, userID, "alice.dev", domain.StatusActive)
	pending := seedRecord(t, repo, userID, "alice.io", domain.StatusPendingVerification)
	seedRecord(t, repo, userID, "old.dev", domain.StatusFailedRegistration)

	consumer := NewPortfolioPublishedConsumer(repo, routes, nil)
	err := consumer.Handle(context.Background(), publishedEvent(t, userID, portfolioID))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"alice.dev", "alice.io"}, routes.activated)

	for _, id := range []uuid.UUID{active.ID, pending.ID} {
		stored := repo.records[id]
		require.NotNil(t, stored.PortfolioID)
		assert.Equal(t, portfolioID, *stored.PortfolioID)
	}
}

func TestPortfolioPublished_AlreadyRoutedSkipped(t *testing.T) {
	repo := newFakeRecordRepo()
	routes := &fakeRoutes{}
	userID := uuid.New()
	existing := uuid.New()

	rec := seedRecord(t, repo, userID, "alice.dev", domain.StatusActive)
	rec.PortfolioID = &existing
	require.NoError(t, repo.Update(context.Background(), rec))

	consumer := NewPortfolioPublishedConsumer(repo, routes, nil)
	err := consumer.Handle(context.Background(), publishedEvent(t, userID, uuid.New()))
	require.NoError(t, err)

	assert.Empty(t, routes.activated)
	assert.Equal(t, existing, *repo.records[rec.ID].PortfolioID)
}

func TestPortfolioPublished_RouteConflictLeavesRecordUnrouted(t *testing.T) {
	repo := newFakeRecordRepo()
	routes := &fakeRoutes{err: routingdomain.ErrRouteConflict}
	userID := uuid.New()

	rec := seedRecord(t, repo, userID, "alice.dev", domain.StatusActive)

	consumer := NewPortfolioPublishedConsumer(repo, routes, nil)
	err := consumer.Handle(context.Background(), publishedEvent(t, userID, uuid.New()))
	require.NoError(t, err)

	assert.Nil(t, repo.records[rec.ID].PortfolioID)
}

func TestPortfolioPublished_MalformedPayloadDropped(t *testing.T) {
	repo := newFakeRecordRepo()
	routes := &fakeRoutes{}

	consumer := NewPortfolioPublishedConsumer(repo, routes, nil)
	err := consumer.Handle(context.Background(), &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: EventPortfolioPublished,
		Payload:    json.RawMessage(`{"user_id": 42}`),
	})
	require.NoError(t, err)
	assert.Empty(t, routes.activated)
}
