// Package finder locates every account that could plausibly belong to the
// identity behind a raw login identifier.
package finder

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mariner/internal/identity/models"
	"mariner/internal/identity/normalize"
	"mariner/internal/identity/store"
	"mariner/internal/platform/metrics"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
)

// lookup names one of the five independent queries, in union order.
type lookup struct {
	kind string
	run  func(ctx context.Context, f *Finder, identifier string, variants []string) ([]*models.Account, error)
}

var lookups = []lookup{
	{"exact_id", func(ctx context.Context, f *Finder, identifier string, _ []string) ([]*models.Account, error) {
		account, err := f.store.FindByID(ctx, id.ParseAccountID(identifier))
		if err != nil {
			return nil, err
		}
		return []*models.Account{account}, nil
	}},
	{"email_fold", func(ctx context.Context, f *Finder, identifier string, _ []string) ([]*models.Account, error) {
		return f.store.FindByEmailFold(ctx, identifier)
	}},
	{"alt_contact", func(ctx context.Context, f *Finder, _ string, variants []string) ([]*models.Account, error) {
		return f.store.FindByAltContact(ctx, variants)
	}},
	{"id_variants", func(ctx context.Context, f *Finder, _ string, variants []string) ([]*models.Account, error) {
		return f.store.FindByIDVariants(ctx, variants)
	}},
	{"fuzzy", func(ctx context.Context, f *Finder, identifier string, _ []string) ([]*models.Account, error) {
		return f.store.FindFuzzy(ctx, identifier)
	}},
}

// Finder unions the five candidate lookups. A failing lookup is logged and
// contributes nothing; the remaining lookups still produce a valid result.
type Finder struct {
	store   store.AccountStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Finder.
func New(accounts store.AccountStore, logger *slog.Logger, m *metrics.Metrics) *Finder {
	return &Finder{store: accounts, logger: logger, metrics: m}
}

// Find returns the raw, possibly duplicated list of matching accounts in
// lookup order. Deduplication and ranking happen downstream in scoring.
func (f *Finder) Find(ctx context.Context, identifier string) []*models.Account {
	variants := normalize.Variants(identifier)

	results := make([][]*models.Account, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range lookups {
		i, l := i, l
		g.Go(func() error {
			accounts, err := l.run(gctx, f, identifier, variants)
			if errors.Is(err, sentinel.ErrNotFound) {
				// A miss on the exact-id lookup is the common case, not a
				// failure.
				err, accounts = nil, nil
			}
			if err != nil {
				// Partial-result tolerance: a single failing lookup must not
				// abort the others.
				f.recordLookup(l.kind, err)
				return nil
			}
			f.recordLookup(l.kind, nil)
			results[i] = accounts
			return nil
		})
	}
	_ = g.Wait()

	var union []*models.Account
	for _, accounts := range results {
		union = append(union, accounts...)
	}
	return union
}

func (f *Finder) recordLookup(kind string, err error) {
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("candidate lookup failed", "lookup", kind, "error", err)
		}
		if f.metrics != nil {
			f.metrics.CandidateLookups.WithLabelValues(kind, "error").Inc()
		}
		return
	}
	if f.metrics != nil {
		f.metrics.CandidateLookups.WithLabelValues(kind, "ok").Inc()
	}
}
