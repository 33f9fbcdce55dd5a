package app_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"wb_reviews/internal/domain"
)

// ---- store ----

type memState struct {
	products map[int64]domain.Product
	reviews  map[int64]domain.Review
	nextP    int64
	nextR    int64
}

func (s memState) clone() memState {
	out := memState{
		products: make(map[int64]domain.Product, len(s.products)),
		reviews:  make(map[int64]domain.Review, len(s.reviews)),
		nextP:    s.nextP,
		nextR:    s.nextR,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.reviews {
		out.reviews[k] = v
	}
	return out
}

// memStore serializes sessions and applies a session's copy on Commit.
type memStore struct {
	mu    sync.Mutex
	state memState

	markErr error // returned by MarkNotified when set
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		products: map[int64]domain.Product{},
		reviews:  map[int64]domain.Review{},
	}}
}

func (m *memStore) OpenSession(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	return &memSession{st: m, w: m.state.clone()}, nil
}

func (m *memStore) addProduct(article, name string) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextP++
	p := domain.Product{ID: m.state.nextP, Article: article, Name: name, CreatedAt: time.Now().UTC()}
	m.state.products[p.ID] = p
	return p
}

func (m *memStore) product(article string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.state.products {
		if p.Article == article {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (m *memStore) reviews() []domain.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Review, 0, len(m.state.reviews))
	for _, r := range m.state.reviews {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) review(externalID string) (domain.Review, bool) {
	for _, r := range m.reviews() {
		if r.ExternalID == externalID {
			return r, true
		}
	}
	return domain.Review{}, false
}

type memSession struct {
	st   *memStore
	w    memState
	done bool
}

func (s *memSession) ListProducts(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(s.w.products))
	for _, p := range s.w.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSession) GetProductByArticle(ctx context.Context, article string) (domain.Product, error) {
	for _, p := range s.w.products {
		if p.Article == article {
			return p, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

func (s *memSession) InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if _, err := s.GetProductByArticle(ctx, p.Article); err == nil {
		return domain.Product{}, domain.ErrConflict
	}
	s.w.nextP++
	p.ID = s.w.nextP
	p.CreatedAt = time.Now().UTC()
	s.w.products[p.ID] = p
	return p, nil
}

func (s *memSession) DeleteProductByArticle(ctx context.Context, article string) error {
	p, err := s.GetProductByArticle(ctx, article)
	if err != nil {
		return err
	}
	delete(s.w.products, p.ID)
	for id, r := range s.w.reviews {
		if r.ProductID == p.ID {
			delete(s.w.reviews, id)
		}
	}
	return nil
}

func (s *memSession) TouchProduct(ctx context.Context, id int64, checkedAt time.Time) error {
	p, ok := s.w.products[id]
	if !ok {
		return nil
	}
	p.LastChecked = &checkedAt
	s.w.products[id] = p
	return nil
}

func (s *memSession) ReviewExists(ctx context.Context, externalID string) (bool, error) {
	for _, r := range s.w.reviews {
		if r.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memSession) InsertReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	if ok, _ := s.ReviewExists(ctx, r.ExternalID); ok {
		return domain.Review{}, domain.ErrConflict
	}
	s.w.nextR++
	r.ID = s.w.nextR
	r.CreatedAt = time.Now().UTC()
	s.w.reviews[r.ID] = r
	return r, nil
}

func (s *memSession) MarkNotified(ctx context.Context, reviewID int64) error {
	if s.st.markErr != nil {
		return s.st.markErr
	}
	r, ok := s.w.reviews[reviewID]
	if ok {
		r.IsNotified = true
		s.w.reviews[reviewID] = r
	}
	return nil
}

func (s *memSession) ListReviews(ctx context.Context, productID int64, limit int) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range s.w.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSession) ListPendingReviews(ctx context.Context, productID int64) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range s.w.reviews {
		if r.ProductID == productID && !r.IsNotified {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSession) Commit() error {
	if s.done {
		return nil
	}
	s.st.state = s.w
	s.done = true
	s.st.mu.Unlock()
	return nil
}

func (s *memSession) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.st.mu.Unlock()
	return nil
}

// ---- gateway ----

type fakeGateway struct {
	mu         sync.Mutex
	products   map[string]domain.ProductInfo
	productErr error
	reviews    map[string][]domain.ReviewRecord
	reviewErr  map[string]error
	sinces     map[string][]*time.Time
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		products:  map[string]domain.ProductInfo{},
		reviews:   map[string][]domain.ReviewRecord{},
		reviewErr: map[string]error{},
		sinces:    map[string][]*time.Time{},
	}
}

func (g *fakeGateway) FetchProduct(ctx context.Context, article string) (domain.ProductInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.productErr != nil {
		return domain.ProductInfo{}, g.productErr
	}
	p, ok := g.products[article]
	if !ok {
		return domain.ProductInfo{}, domain.ErrNotFound
	}
	return p, nil
}

func (g *fakeGateway) FetchReviews(ctx context.Context, article string, since *time.Time) ([]domain.ReviewRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sinces[article] = append(g.sinces[article], since)
	if err := g.reviewErr[article]; err != nil {
		return nil, err
	}
	return append([]domain.ReviewRecord(nil), g.reviews[article]...), nil
}

func (g *fakeGateway) calls(article string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sinces[article])
}

// ---- sink ----

type fakeSink struct {
	mu   sync.Mutex
	sent []domain.Notification
	fail map[string]bool // by external id
}

func (s *fakeSink) Notify(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[n.ExternalID] {
		return errSinkDown
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, n := range s.sent {
		out[i] = n.ExternalID
	}
	return out
}

// ---- cache ----

// jsonCache round-trips values through JSON like the redis adapter does.
type jsonCache struct {
	mu   sync.Mutex
	data map[string][]byte
	dels []string
}

func newJSONCache() *jsonCache { return &jsonCache{data: map[string][]byte{}} }

func (c *jsonCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *jsonCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *jsonCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *jsonCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// ---- helpers ----

func rec(id string, rating int, text string, date time.Time) domain.ReviewRecord {
	r := rating
	return domain.ReviewRecord{ExternalID: id, Rating: &r, Text: text, Author: "A", ReviewDate: date}
}

var day = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
