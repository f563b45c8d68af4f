package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/souqline/backend/internal/auth"
	"github.com/souqline/backend/internal/models"
)

var ErrForbidden = errors.New("metrics require an admin")

// Scope limits a rollup to one country. The zero Scope covers everything.
type Scope struct {
	Country string
}

// ScopeFor derives the scope from the caller. Admins tied to a country only
// see that country; admins without one see all of them.
func ScopeFor(p *auth.Principal) (Scope, error) {
	if p == nil || !p.IsAdmin {
		return Scope{}, ErrForbidden
	}
	return Scope{Country: p.Country}, nil
}

type Source interface {
	Dashboard(ctx context.Context, country string, since *time.Time) (*models.Dashboard, error)
}

type Aggregator struct {
	src Source
	now func() time.Time
}

func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src, now: time.Now}
}

// Dashboard returns the rollup for scope. A zero since means all time.
func (a *Aggregator) Dashboard(ctx context.Context, scope Scope, since time.Time) (*models.Dashboard, error) {
	var from *time.Time
	if !since.IsZero() {
		s := since.UTC()
		from = &s
	}
	d, err := a.src.Dashboard(ctx, scope.Country, from)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	d.GeneratedAt = a.now().UTC()
	return d, nil
}
