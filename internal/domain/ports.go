package domain

import (
	"context"
	"time"
)

// Store hands out short-lived transactional sessions. Callers must Close every
// session they open; Close rolls back whatever was not committed.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
}

type Session interface {
	// Products
	ListProducts(ctx context.Context) ([]Product, error)
	GetProductByArticle(ctx context.Context, article string) (Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	DeleteProductByArticle(ctx context.Context, article string) error
	TouchProduct(ctx context.Context, id int64, checkedAt time.Time) error

	// Reviews
	ReviewExists(ctx context.Context, externalID string) (bool, error)
	InsertReview(ctx context.Context, r Review) (Review, error)
	MarkNotified(ctx context.Context, reviewID int64) error
	ListReviews(ctx context.Context, productID int64, limit int) ([]Review, error)
	ListPendingReviews(ctx context.Context, productID int64) ([]Review, error)

	Commit() error
	Close() error
}

type Gateway interface {
	FetchProduct(ctx context.Context, article string) (ProductInfo, error)
	// FetchReviews returns reviews strictly newer than since (all when since is nil).
	FetchReviews(ctx context.Context, article string, since *time.Time) ([]ReviewRecord, error)
}

// Sink delivers one notification; a nil error means it was handed off.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models

type ReviewsPage struct {
	Article string
	Items   []Review
}
