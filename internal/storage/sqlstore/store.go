package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"wb_reviews/internal/domain"
)

// Store owns the connection pool; every unit of work goes through a Session.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open migrates the schema and connects. For sqlite, dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == DriverSQLite {
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}
	if err := Migrate(driver, dsn); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// single writer; sessions queue on the pool instead of failing with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) OpenSession(ctx context.Context) (domain.Session, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &session{tx: tx, now: s.now}, nil
}

/********** row types **********/

type productRow struct {
	ID          int64        `db:"id"`
	Article     string       `db:"article"`
	Name        string       `db:"name"`
	LastChecked sql.NullTime `db:"last_checked"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r productRow) domain() domain.Product {
	p := domain.Product{ID: r.ID, Article: r.Article, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
	if r.LastChecked.Valid {
		t := r.LastChecked.Time.UTC()
		p.LastChecked = &t
	}
	return p
}

type reviewRow struct {
	ID         int64         `db:"id"`
	ProductID  int64         `db:"product_id"`
	ExternalID string        `db:"external_id"`
	Rating     sql.NullInt64 `db:"rating"`
	Text       string        `db:"text"`
	Author     string        `db:"author"`
	ReviewDate time.Time     `db:"review_date"`
	IsNotified bool          `db:"is_notified"`
	CreatedAt  time.Time     `db:"created_at"`
}

func (r reviewRow) domain() domain.Review {
	rv := domain.Review{
		ID:         r.ID,
		ProductID:  r.ProductID,
		ExternalID: r.ExternalID,
		Text:       r.Text,
		Author:     r.Author,
		ReviewDate: r.ReviewDate.UTC(),
		IsNotified: r.IsNotified,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.Rating.Valid {
		n := int(r.Rating.Int64)
		rv.Rating = &n
	}
	return rv
}

func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
