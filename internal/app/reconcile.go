package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"wb_reviews/internal/adapters/observability"
	"wb_reviews/internal/domain"
)

type ReconcileOptions struct {
	// Lookback widens the fetch window below last_checked; <= 0 fetches everything.
	Lookback time.Duration
	Workers  int
	// RedeliverPending retries notification of stored reviews with is_notified=false.
	RedeliverPending bool
}

type ReconcileService struct {
	store   domain.Store
	gateway domain.Gateway
	sink    domain.Sink
	cache   domain.Cache
	opts    ReconcileOptions
	now     func() time.Time
}

func NewReconcileService(st domain.Store, gw domain.Gateway, sink domain.Sink, cache domain.Cache, opts ReconcileOptions) *ReconcileService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &ReconcileService{
		store:   st,
		gateway: gw,
		sink:    sink,
		cache:   cache,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type ProductReport struct {
	Article      string
	Fetched      int
	Inserted     int
	Skipped      int // already stored
	Notified     int
	NotifyFailed int
	Redelivered  int
}

type CycleReport struct {
	Products     int
	Failed       int
	Inserted     int
	Notified     int
	NotifyFailed int
	// Err is set when the cycle could not start (product list unreadable).
	Err error
}

func (r *CycleReport) add(p ProductReport, err error) {
	r.Inserted += p.Inserted
	r.Notified += p.Notified + p.Redelivered
	r.NotifyFailed += p.NotifyFailed
	if err != nil {
		r.Failed++
	}
}

// RunCycle reconciles every tracked product once. A failing product is logged
// and counted; it never stops the others. After ctx is cancelled no new
// product is started, but products already in flight run to completion.
func (s *ReconcileService) RunCycle(ctx context.Context) CycleReport {
	l := logger(ctx)

	var products []domain.Product
	err := withSession(ctx, s.store, func(sess domain.Session) error {
		var err error
		products, err = sess.ListProducts(ctx)
		return err
	})
	if err != nil {
		return CycleReport{Err: fmt.Errorf("list products: %w", err)}
	}
	rep := CycleReport{Products: len(products)}
	if len(products) == 0 {
		l.Info().Msg("no products to monitor")
		return rep
	}
	l.Info().Int("products", len(products)).Int("workers", s.opts.Workers).Msg("checking products")

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(s.opts.Workers))
	)
	for _, p := range products {
		if err := sem.Acquire(ctx, 1); err != nil {
			l.Info().Str("article", p.Article).Msg("cycle interrupted, remaining products skipped")
			break
		}
		wg.Add(1)
		go func(p domain.Product) {
			defer wg.Done()
			defer sem.Release(1)

			pr, err := s.reconcileSafe(context.WithoutCancel(ctx), p)
			observability.ObserveProduct(err != nil)
			if err != nil {
				l.Error().Err(err).Str("article", p.Article).Msg("product check failed")
			} else {
				l.Info().Str("article", p.Article).
					Int("fetched", pr.Fetched).Int("inserted", pr.Inserted).
					Int("notified", pr.Notified).Int("notify_failed", pr.NotifyFailed).
					Msg("product checked")
			}
			mu.Lock()
			rep.add(pr, err)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return rep
}

func (s *ReconcileService) reconcileSafe(ctx context.Context, p domain.Product) (pr ProductReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.ReconcileProduct(ctx, p)
}

// ReconcileProduct fetches the product's recent reviews, stores the unseen ones
// and notifies about each of them. Every review is inserted in its own session
// so a later failure never rolls back earlier inserts.
func (s *ReconcileService) ReconcileProduct(ctx context.Context, p domain.Product) (ProductReport, error) {
	l := logger(ctx).With().Str("article", p.Article).Logger()
	startedAt := s.now()
	rep := ProductReport{Article: p.Article}

	defer func() {
		if rep.Inserted > 0 {
			observability.ObserveIngested(rep.Inserted)
		}
		if rep.Inserted > 0 || rep.Redelivered > 0 {
			invalidateReviews(ctx, s.cache, p.Article)
		}
	}()

	if s.opts.RedeliverPending {
		if err := s.redeliver(ctx, p, &rep); err != nil {
			return rep, fmt.Errorf("redeliver pending: %w", err)
		}
	}

	since := s.watermark(p, startedAt)
	recs, err := s.gateway.FetchReviews(ctx, p.Article, since)
	if err != nil {
		return rep, fmt.Errorf("fetch reviews: %w", err)
	}
	rep.Fetched = len(recs)

	for _, rec := range recs {
		rv, created, err := s.insertIfNew(ctx, p, rec)
		if err != nil {
			return rep, fmt.Errorf("store review %s: %w", rec.ExternalID, err)
		}
		if !created {
			rep.Skipped++
			continue
		}
		rep.Inserted++
		l.Info().Str("external_id", rv.ExternalID).Msg("new review stored")

		delivered, err := s.deliver(ctx, p, rv)
		if err != nil {
			return rep, err
		}
		if delivered {
			rep.Notified++
		} else {
			rep.NotifyFailed++
		}
	}

	if err := withSession(ctx, s.store, func(sess domain.Session) error {
		return sess.TouchProduct(ctx, p.ID, startedAt)
	}); err != nil {
		return rep, fmt.Errorf("touch product: %w", err)
	}
	// last_checked is part of the cached product list
	invalidateProducts(ctx, s.cache)
	return rep, nil
}

// watermark is the earlier of now-Lookback and last_checked, so the window only
// ever widens when the watcher was down longer than the lookback.
func (s *ReconcileService) watermark(p domain.Product, now time.Time) *time.Time {
	if s.opts.Lookback <= 0 {
		return nil
	}
	since := now.Add(-s.opts.Lookback)
	if p.LastChecked != nil && p.LastChecked.Before(since) {
		since = *p.LastChecked
	}
	return &since
}

func (s *ReconcileService) insertIfNew(ctx context.Context, p domain.Product, rec domain.ReviewRecord) (domain.Review, bool, error) {
	var (
		rv      domain.Review
		created bool
	)
	err := withSession(ctx, s.store, func(sess domain.Session) error {
		exists, err := sess.ReviewExists(ctx, rec.ExternalID)
		if err != nil || exists {
			return err
		}
		rv, err = sess.InsertReview(ctx, domain.Review{
			ProductID:  p.ID,
			ExternalID: rec.ExternalID,
			Rating:     rec.Rating,
			Text:       rec.Text,
			Author:     rec.Author,
			ReviewDate: rec.ReviewDate,
		})
		if errors.Is(err, domain.ErrConflict) {
			// stored concurrently (or under another product)
			return nil
		}
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Review{}, false, err
	}
	return rv, created, nil
}

// deliver notifies about rv and marks it notified. A sink failure is reported as
// delivered=false and leaves the review pending; only store errors are returned.
func (s *ReconcileService) deliver(ctx context.Context, p domain.Product, rv domain.Review) (bool, error) {
	if err := s.sink.Notify(ctx, notificationFor(p, rv)); err != nil {
		logger(ctx).Warn().Err(err).Str("article", p.Article).Str("external_id", rv.ExternalID).
			Msg("notification failed, review left pending")
		return false, nil
	}
	if err := withSession(ctx, s.store, func(sess domain.Session) error {
		return sess.MarkNotified(ctx, rv.ID)
	}); err != nil {
		return true, fmt.Errorf("mark notified %s: %w", rv.ExternalID, err)
	}
	return true, nil
}

func (s *ReconcileService) redeliver(ctx context.Context, p domain.Product, rep *ProductReport) error {
	var pending []domain.Review
	if err := withSession(ctx, s.store, func(sess domain.Session) error {
		var err error
		pending, err = sess.ListPendingReviews(ctx, p.ID)
		return err
	}); err != nil {
		return err
	}
	for _, rv := range pending {
		delivered, err := s.deliver(ctx, p, rv)
		if err != nil {
			return err
		}
		if delivered {
			rep.Redelivered++
		} else {
			rep.NotifyFailed++
		}
	}
	return nil
}

func notificationFor(p domain.Product, rv domain.Review) domain.Notification {
	return domain.Notification{
		ProductName: p.Name,
		Article:     p.Article,
		ExternalID:  rv.ExternalID,
		Rating:      rv.Rating,
		Text:        rv.Text,
		Author:      rv.Author,
		Date:        rv.ReviewDate,
	}
}
