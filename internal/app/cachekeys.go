package app

import (
	"context"
	"fmt"
	"time"

	"wb_reviews/internal/domain"
)

const (
	DefaultReviewLimit = 50
	MaxReviewLimit     = 200

	productsKey = "products"
)

// Review pages are keyed by a per-article generation; invalidation moves the
// generation forward so every cached limit goes stale at once. Old pages age
// out with their TTL.
func reviewsGenKey(article string) string {
	return "reviews:" + article + ":gen"
}

func reviewsKey(article string, gen int64, limit int) string {
	return fmt.Sprintf("reviews:%s:%d:%d", article, gen, limit)
}

// reviewsGen returns the current generation, 0 when none was ever recorded.
func reviewsGen(ctx context.Context, c domain.Cache, article string) int64 {
	if c == nil {
		return 0
	}
	var gen int64
	if ok, err := c.Get(ctx, reviewsGenKey(article), &gen); err != nil || !ok {
		return 0
	}
	return gen
}

func invalidateReviews(ctx context.Context, c domain.Cache, article string) {
	if c == nil {
		return
	}
	gen := time.Now().UnixNano()
	if cur := reviewsGen(ctx, c, article); gen <= cur {
		gen = cur + 1
	}
	// no TTL: the generation must outlive every page cached under it
	if err := c.Set(ctx, reviewsGenKey(article), gen, 0); err != nil {
		logger(ctx).Warn().Err(err).Str("article", article).Msg("review cache generation not bumped")
	}
}

func invalidateProducts(ctx context.Context, c domain.Cache) {
	if c == nil {
		return
	}
	_ = c.Del(ctx, productsKey)
}
