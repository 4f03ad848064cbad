package usecase

import (
	"context"
	"fmt"

	"SignalFeed/internal/domain/models"
	domrepo "SignalFeed/internal/domain/repository"
)

// Paginator serves page windows over the newest-first ordering.
type Paginator struct {
	store        domrepo.EventStore
	defaultLimit int
	maxLimit     int
}

func NewPaginator(store domrepo.EventStore, defaultLimit, maxLimit int) *Paginator {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = min(10, maxLimit)
	}
	return &Paginator{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// EffectiveLimit maps a requested limit onto (0, maxLimit]; non-positive means default.
func (p *Paginator) EffectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return p.defaultLimit
	case limit > p.maxLimit:
		return p.maxLimit
	default:
		return limit
	}
}

// GetPage returns window `page` of size `limit`. Pages past the end are empty, not errors.
func (p *Paginator) GetPage(ctx context.Context, page, limit int) (models.Page, error) {
	if page < 0 {
		return models.Page{}, fmt.Errorf("%w: page must be >= 0", domrepo.ErrValidation)
	}
	limit = p.EffectiveLimit(limit)

	total, err := p.store.Count(ctx)
	if err != nil {
		return models.Page{}, err
	}

	out := models.Page{
		Items:       []models.SignalEvent{},
		Total:       total,
		TotalPages:  TotalPages(total, limit),
		CurrentPage: page,
		Limit:       limit,
	}

	// compare pages before multiplying so a huge page cannot overflow the offset
	if page >= out.TotalPages {
		return out, nil
	}

	items, err := p.store.QueryPage(ctx, page*limit, limit)
	if err != nil {
		return models.Page{}, err
	}
	if items != nil {
		out.Items = items
	}
	return out, nil
}

// TotalPages is ceil(total / limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
