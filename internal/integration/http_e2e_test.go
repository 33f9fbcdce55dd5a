//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	server "wb_reviews/internal/adapters/http_server"
	"wb_reviews/internal/adapters/wb"
	"wb_reviews/internal/app"
	"wb_reviews/internal/domain"
	"wb_reviews/internal/storage/sqlstore"
)

// ---------- helpers ----------

type captureSink struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (s *captureSink) Notify(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func startMySQL(t *testing.T) *sqlstore.Store {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=wb_reviews",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/wb_reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var st *sqlstore.Store
	if err := pool.Retry(func() error {
		var e error
		st, e = sqlstore.Open(context.Background(), sqlstore.DriverMySQL, dsn)
		return e
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// fakeMarketplace serves article 100 with a batch that repeats r1; failing
// flips the feedbacks endpoint to 503.
func fakeMarketplace(t *testing.T, failing *atomic.Bool) *httptest.Server {
	t.Helper()
	recent := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/cards"):
			if r.URL.Query().Get("nm") != "100" {
				fmt.Fprint(w, `{"data":{"products":[]}}`)
				return
			}
			fmt.Fprint(w, `{"data":{"products":[{"id":100,"name":"X"}]}}`)
		case r.URL.Path == "/feedbacks/100":
			if failing.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprintf(w, `{"feedbacks":[
			 {"id":"r1","productValuation":1,"text":"bad","createdDate":%q},
			 {"id":"r1","productValuation":1,"text":"bad","createdDate":%q},
			 {"id":"r4","productValuation":4,"text":"ok","createdDate":"garbage"}]}`, recent, recent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

// ---------- the test ----------

func TestHTTP_EndToEnd_WatchProduct(t *testing.T) {
	st := startMySQL(t)
	var failing atomic.Bool
	mkt := fakeMarketplace(t, &failing)

	client, err := wb.New(mkt.URL+"/cards/v2/detail", mkt.URL+"/feedbacks", 100)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	sink := &captureSink{}
	rec := app.NewReconcileService(st, client, sink, nil, app.ReconcileOptions{Lookback: 72 * time.Hour})

	srv := server.New()
	srv.MountHandlers(&server.Handlers{
		Q: app.NewQueryService(st, nil, 0),
		C: app.NewCommandService(st, client, nil),
	})
	api := httptest.NewServer(srv.Mux())
	defer api.Close()

	// add the product over HTTP
	res, err := http.Post(api.URL+"/v1/products", "application/json", strings.NewReader(`{"article":"100"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add status %d", res.StatusCode)
	}

	// one cycle: r1 once (duplicate in batch), r4 with unknown date
	rep := rec.RunCycle(context.Background())
	if rep.Err != nil || rep.Inserted != 2 || rep.Notified != 2 {
		t.Fatalf("first cycle: %+v", rep)
	}

	// marketplace down: no rows, no notification, loop state unaffected
	failing.Store(true)
	rep = rec.RunCycle(context.Background())
	if rep.Failed != 1 || rep.Inserted != 0 {
		t.Fatalf("failing cycle: %+v", rep)
	}
	failing.Store(false)

	// idempotent once it recovers
	rep = rec.RunCycle(context.Background())
	if rep.Inserted != 0 || sink.count() != 2 {
		t.Fatalf("third cycle: %+v, sent %d", rep, sink.count())
	}

	res, err = http.Get(api.URL + "/v1/products/100/reviews")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reviews status %d", res.StatusCode)
	}
	var body struct {
		Items []struct {
			ExternalID string     `json:"external_id"`
			ReviewDate *time.Time `json:"review_date"`
			Notified   bool       `json:"notified"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected r1 and r4, got %+v", body.Items)
	}
	for _, it := range body.Items {
		if !it.Notified {
			t.Fatalf("%s not marked notified", it.ExternalID)
		}
		if it.ExternalID == "r4" && it.ReviewDate != nil {
			t.Fatalf("r4 should have no date, got %s", it.ReviewDate)
		}
	}

	// delete cascades to reviews
	req, _ := http.NewRequest(http.MethodDelete, api.URL+"/v1/products/100", nil)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, err = http.Get(api.URL + "/v1/products/100/reviews")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}
