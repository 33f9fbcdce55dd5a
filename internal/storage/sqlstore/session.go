package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"wb_reviews/internal/domain"
)

// session is one transaction.
type session struct {
	tx   *sqlx.Tx
	now  func() time.Time
	done bool
}

func (s *session) Commit() error {
	if s.done {
		return errors.New("session already finished")
	}
	s.done = true
	return s.tx.Commit()
}

// Close rolls back unless Commit already ran; safe to defer.
func (s *session) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback()
}

func (s *session) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.tx.SelectContext(ctx, &rows, listProductsSQL); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.domain())
	}
	return out, nil
}

func (s *session) GetProductByArticle(ctx context.Context, article string) (domain.Product, error) {
	var row productRow
	if err := s.tx.GetContext(ctx, &row, getProductByArticleSQL, article); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("get product %s: %w", article, err)
	}
	return row.domain(), nil
}

func (s *session) InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.CreatedAt = s.now().Truncate(time.Second)
	res, err := s.tx.ExecContext(ctx, insertProductSQL, p.Article, p.Name, p.CreatedAt)
	if err != nil {
		if isConflict(err) {
			return domain.Product{}, domain.ErrConflict
		}
		return domain.Product{}, fmt.Errorf("insert product %s: %w", p.Article, err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return domain.Product{}, fmt.Errorf("insert product %s: %w", p.Article, err)
	}
	return p, nil
}

func (s *session) DeleteProductByArticle(ctx context.Context, article string) error {
	res, err := s.tx.ExecContext(ctx, deleteProductByArticleSQL, article)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", article, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product %s: %w", article, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *session) TouchProduct(ctx context.Context, id int64, checkedAt time.Time) error {
	if _, err := s.tx.ExecContext(ctx, touchProductSQL, checkedAt.UTC(), id); err != nil {
		return fmt.Errorf("touch product %d: %w", id, err)
	}
	return nil
}

func (s *session) ReviewExists(ctx context.Context, externalID string) (bool, error) {
	var n int
	if err := s.tx.GetContext(ctx, &n, reviewExistsSQL, externalID); err != nil {
		return false, fmt.Errorf("review exists %s: %w", externalID, err)
	}
	return n > 0, nil
}

func (s *session) InsertReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	r.CreatedAt = s.now().Truncate(time.Second)
	r.ReviewDate = r.ReviewDate.UTC()
	res, err := s.tx.ExecContext(ctx, insertReviewSQL,
		r.ProductID,
		r.ExternalID,
		valInt(r.Rating),
		r.Text,
		r.Author,
		r.ReviewDate,
		r.IsNotified,
		r.CreatedAt,
	)
	if err != nil {
		if isConflict(err) {
			return domain.Review{}, domain.ErrConflict
		}
		return domain.Review{}, fmt.Errorf("insert review %s: %w", r.ExternalID, err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return domain.Review{}, fmt.Errorf("insert review %s: %w", r.ExternalID, err)
	}
	return r, nil
}

func (s *session) MarkNotified(ctx context.Context, reviewID int64) error {
	// RowsAffected is not checked: MySQL reports 0 for rows already at the target value.
	if _, err := s.tx.ExecContext(ctx, markNotifiedSQL, reviewID); err != nil {
		return fmt.Errorf("mark notified %d: %w", reviewID, err)
	}
	return nil
}

func (s *session) ListReviews(ctx context.Context, productID int64, limit int) ([]domain.Review, error) {
	var rows []reviewRow
	if err := s.tx.SelectContext(ctx, &rows, listReviewsSQL, productID, limit); err != nil {
		return nil, fmt.Errorf("list reviews %d: %w", productID, err)
	}
	return reviewsFromRows(rows), nil
}

func (s *session) ListPendingReviews(ctx context.Context, productID int64) ([]domain.Review, error) {
	var rows []reviewRow
	if err := s.tx.SelectContext(ctx, &rows, listPendingReviewsSQL, productID); err != nil {
		return nil, fmt.Errorf("list pending reviews %d: %w", productID, err)
	}
	return reviewsFromRows(rows), nil
}

func reviewsFromRows(rows []reviewRow) []domain.Review {
	out := make([]domain.Review, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.domain())
	}
	return out
}
