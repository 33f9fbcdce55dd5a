package app

import (
	"context"
	"fmt"
	"time"

	"wb_reviews/internal/domain"
)

type QueryService struct {
	store    domain.Store
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(st domain.Store, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: st, cache: c, cacheTTL: ttl}
}

func (s *QueryService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	if s.cacheGet(ctx, productsKey, &out) {
		return out, nil
	}
	err := withSession(ctx, s.store, func(sess domain.Session) error {
		var err error
		out, err = sess.ListProducts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Product{}
	}
	s.cacheSet(ctx, productsKey, out)
	return out, nil
}

// ListReviews returns the newest reviews of a tracked product. limit is clamped
// to 1..MaxReviewLimit; 0 means DefaultReviewLimit.
func (s *QueryService) ListReviews(ctx context.Context, article string, limit int) (domain.ReviewsPage, error) {
	if !ValidArticle(article) {
		return domain.ReviewsPage{}, domain.ErrInvalidArticle
	}
	switch {
	case limit <= 0:
		limit = DefaultReviewLimit
	case limit > MaxReviewLimit:
		limit = MaxReviewLimit
	}

	key := reviewsKey(article, reviewsGen(ctx, s.cache, article), limit)
	var out domain.ReviewsPage
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	err := withSession(ctx, s.store, func(sess domain.Session) error {
		p, err := sess.GetProductByArticle(ctx, article)
		if err != nil {
			return err
		}
		items, err := sess.ListReviews(ctx, p.ID, limit)
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		out = domain.ReviewsPage{Article: article, Items: copyReviews(items)}
		return nil
	})
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

func (s *QueryService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, _ := s.cache.Get(ctx, key, dst)
	return ok
}

func (s *QueryService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
}

// copy to avoid aliasing the store's backing array in cached values
func copyReviews(in []domain.Review) []domain.Review {
	out := make([]domain.Review, len(in))
	copy(out, in)
	return out
}
