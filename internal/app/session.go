package app

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wb_reviews/internal/domain"
)

// withSession runs fn in one short-lived session and commits when fn succeeds.
// Anything fn left uncommitted is rolled back by Close.
func withSession(ctx context.Context, st domain.Store, fn func(domain.Session) error) error {
	s, err := st.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := fn(s); err != nil {
		return err
	}
	return s.Commit()
}

// logger prefers the request/cycle logger stored in ctx over the global one.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
