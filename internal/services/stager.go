package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harentsoar/clinic-api/internal/kvstore"
	"github.com/harentsoar/clinic-api/internal/models"
)

const registrationKeyPrefix = "registration:"

// Stager holds one pending registration per browser session between the
// form submit and the OTP confirmation.
type Stager struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewStager returns a Stager whose stages expire after ttl.
func NewStager(store kvstore.Store, ttl time.Duration) *Stager {
	return &Stager{store: store, ttl: ttl}
}

// Stage stores reg for sessionID, replacing anything staged before.
func (s *Stager) Stage(ctx context.Context, sessionID string, reg *models.PendingRegistration) error {
	if sessionID == "" {
		return ErrStaleRegistration
	}
	b, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	if err := s.store.Set(ctx, registrationKeyPrefix+sessionID, b, s.ttl); err != nil {
		return fmt.Errorf("stage registration: %w", err)
	}
	return nil
}

// Retrieve returns the staged registration, or ErrStaleRegistration when
// nothing is staged or it has expired.
func (s *Stager) Retrieve(ctx context.Context, sessionID string) (*models.PendingRegistration, error) {
	if sessionID == "" {
		return nil, ErrStaleRegistration
	}
	b, err := s.store.Get(ctx, registrationKeyPrefix+sessionID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrStaleRegistration
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	var reg models.PendingRegistration
	if err := json.Unmarshal(b, &reg); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return &reg, nil
}

// Clear removes the staged registration. Clearing an empty stage is not an
// error.
func (s *Stager) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if _, err := s.store.Delete(ctx, registrationKeyPrefix+sessionID); err != nil {
		return fmt.Errorf("clear registration: %w", err)
	}
	return nil
}

// Consume returns the staged registration and removes it. Of two
// concurrent consumers only one gets the data; the other sees
// ErrStaleRegistration.
func (s *Stager) Consume(ctx context.Context, sessionID string) (*models.PendingRegistration, error) {
	reg, err := s.Retrieve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.Delete(ctx, registrationKeyPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("consume registration: %w", err)
	}
	if !ok {
		return nil, ErrStaleRegistration
	}
	return reg, nil
}
