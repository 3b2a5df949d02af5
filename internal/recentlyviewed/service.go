// Package recentlyviewed keeps a short most-recent-first list of listings each viewer opened.
package recentlyviewed

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

const DefaultLimit = 20

type listStore interface {
	PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	RecentlyViewedKey(viewer string) string
}

// Service records and lists recently viewed listings.
type Service struct {
	store listStore
	limit int
	ttl   time.Duration
}

func NewService(store listStore, limit int, ttl time.Duration) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{store: store, limit: limit, ttl: ttl}, nil
}

// Record moves listingID to the front of the viewer's list.
func (s *Service) Record(ctx context.Context, viewer types.Principal, listingID string) error {
	key, err := s.key(viewer)
	if err != nil {
		return err
	}
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if err := s.store.PushCapped(ctx, key, listingID, int64(s.limit), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record recently viewed")
	}
	return nil
}

// List returns the viewer's listings newest first, leaving out the one currently on screen.
func (s *Service) List(ctx context.Context, viewer types.Principal, currentListingID string) ([]string, error) {
	key, err := s.key(viewer)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.Range(ctx, key, 0, int64(s.limit-1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recently viewed")
	}
	current := strings.TrimSpace(currentListingID)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == current {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Service) key(viewer types.Principal) (string, error) {
	viewerKey := viewer.Key()
	if viewerKey == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "guest device id is required")
	}
	return s.store.RecentlyViewedKey(viewerKey), nil
}
