package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/bastionhq/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOverrideService(overrides services.OverrideRepository) *services.OverrideService {
	log := testLogger()
	return services.NewOverrideService(overrides, logger.NewAuditLogger(log), log)
}

func TestSetOverride_GlobalWhenNoPattern(t *testing.T) {
	var upserted *models.RateLimitOverride
	overrides := &services.MockOverrideRepository{
		UpsertFunc: func(ctx context.Context, o *models.RateLimitOverride) (*models.RateLimitOverride, error) {
			upserted = o
			return o, nil
		},
	}

	service := newOverrideService(overrides)
	_, err := service.SetOverride(context.Background(), "203.0.113.7", models.IdentifierIP, "", 1000, 1, nil, "partner integration", "admin@example.com")

	assert.NoError(t, err)
	require.NotNil(t, upserted)
	assert.Nil(t, upserted.EndpointPattern)
	assert.Equal(t, 1000, upserted.MaxRequests)
	assert.True(t, upserted.IsActive)
}

func TestSetOverride_EndpointScoped(t *testing.T) {
	var upserted *models.RateLimitOverride
	overrides := &services.MockOverrideRepository{
		UpsertFunc: func(ctx context.Context, o *models.RateLimitOverride) (*models.RateLimitOverride, error) {
			upserted = o
			return o, nil
		},
	}

	service := newOverrideService(overrides)
	_, err := service.SetOverride(context.Background(), "key-1", models.IdentifierAPIKey, "/v1/gate/check", 500, 5, nil, "load test", "admin@example.com")

	assert.NoError(t, err)
	require.NotNil(t, upserted.EndpointPattern)
	assert.Equal(t, "/v1/gate/check", *upserted.EndpointPattern)
}

func TestSetOverride_RejectsInvalidValues(t *testing.T) {
	service := newOverrideService(&services.MockOverrideRepository{})

	_, err := service.SetOverride(context.Background(), "203.0.113.7", models.IdentifierIP, "", 0, 1, nil, "", "admin@example.com")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = service.SetOverride(context.Background(), "203.0.113.7", models.IdentifierIP, "", 100, 0, nil, "", "admin@example.com")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestSetOverride_RejectsInvalidIdentifierType(t *testing.T) {
	service := newOverrideService(&services.MockOverrideRepository{})

	_, err := service.SetOverride(context.Background(), "test@example.com", models.IdentifierEmail, "", 100, 1, nil, "", "admin@example.com")

	assert.ErrorIs(t, err, models.ErrInvalidIdentifierType)
}

func TestResolveLimit_DefaultsWithoutOverride(t *testing.T) {
	service := newOverrideService(&services.MockOverrideRepository{})

	limit := service.ResolveLimit(context.Background(), "203.0.113.7", models.IdentifierIP, "/v1/gate/check", 60, 1)

	assert.False(t, limit.Overridden)
	assert.Equal(t, 60, limit.MaxRequests)
	assert.Equal(t, 1, limit.WindowMinutes)
}

func TestResolveLimit_AppliesOverride(t *testing.T) {
	overrides := &services.MockOverrideRepository{
		ResolveFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, now time.Time) (*models.RateLimitOverride, error) {
			return &models.RateLimitOverride{
				Identifier:     identifier,
				IdentifierType: identifierType,
				MaxRequests:    1000,
				WindowMinutes:  5,
				IsActive:       true,
			}, nil
		},
	}

	service := newOverrideService(overrides)
	limit := service.ResolveLimit(context.Background(), "203.0.113.7", models.IdentifierIP, "/v1/gate/check", 60, 1)

	assert.True(t, limit.Overridden)
	assert.Equal(t, 1000, limit.MaxRequests)
	assert.Equal(t, 5, limit.WindowMinutes)
}

func TestResolveLimit_DefaultsOnStoreError(t *testing.T) {
	overrides := &services.MockOverrideRepository{
		ResolveFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, now time.Time) (*models.RateLimitOverride, error) {
			return nil, errors.New("connection refused")
		},
	}

	service := newOverrideService(overrides)
	limit := service.ResolveLimit(context.Background(), "203.0.113.7", models.IdentifierIP, "/v1/gate/check", 60, 1)

	assert.False(t, limit.Overridden)
	assert.Equal(t, 60, limit.MaxRequests)
}

func TestRemoveOverride_PropagatesNotFound(t *testing.T) {
	overrides := &services.MockOverrideRepository{
		DeactivateFunc: func(ctx context.Context, id string) error {
			return models.ErrNotFound
		},
	}

	service := newOverrideService(overrides)
	err := service.RemoveOverride(context.Background(), "missing-id", "admin@example.com")

	assert.ErrorIs(t, err, models.ErrNotFound)
}
