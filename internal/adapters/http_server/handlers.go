// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"wb_reviews/internal/app"
	"wb_reviews/internal/domain"
)

type Handlers struct {
	Q *app.QueryService
	C *app.CommandService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.addProduct)
		r.Delete("/{article}", h.removeProduct)
		r.Get("/{article}/reviews", h.listReviews)
	})
}

/********** views **********/

type productView struct {
	Article     string     `json:"article"`
	Name        string     `json:"name"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type reviewView struct {
	ExternalID string     `json:"external_id"`
	Rating     *int       `json:"rating"`
	Text       string     `json:"text"`
	Author     string     `json:"author"`
	ReviewDate *time.Time `json:"review_date"` // null when the marketplace gave none
	Notified   bool       `json:"notified"`
}

type reviewsView struct {
	Article string       `json:"article"`
	Items   []reviewView `json:"items"`
}

type commandView struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Product *productView `json:"product,omitempty"`
}

func toProductView(p domain.Product) productView {
	return productView{Article: p.Article, Name: p.Name, LastChecked: p.LastChecked, CreatedAt: p.CreatedAt}
}

func toReviewsView(pg domain.ReviewsPage) reviewsView {
	out := reviewsView{Article: pg.Article, Items: make([]reviewView, 0, len(pg.Items))}
	for _, r := range pg.Items {
		v := reviewView{
			ExternalID: r.ExternalID,
			Rating:     r.Rating,
			Text:       r.Text,
			Author:     r.Author,
			Notified:   r.IsNotified,
		}
		if !r.ReviewDate.Equal(domain.SentinelDate) {
			d := r.ReviewDate
			v.ReviewDate = &d
		}
		out.Items = append(out.Items, v)
	}
	return out
}

/********** helpers **********/

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v with a weak ETag, or 304 when the client already has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeProblem(w, http.StatusInternalServerError, "Internal Error", app.ErrorMessage(err))
}

/********** handlers **********/

func (h *Handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Q.ListProducts(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductView(p))
	}
	writeCached(w, r, out)
}

func (h *Handlers) addProduct(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Article string `json:"article"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", `expected {"article": "<digits>"}`)
		return
	}

	res, err := h.C.Add(r.Context(), in.Article)
	if err != nil {
		internalError(w, r, err)
		return
	}

	switch res.Status {
	case app.AddOK:
		pv := toProductView(res.Product)
		w.Header().Set("Location", "/v1/products/"+res.Article+"/reviews")
		writeJSON(w, http.StatusCreated, commandView{Status: "added", Message: res.Message(), Product: &pv})
	case app.AddAlreadyTracked:
		writeProblem(w, http.StatusConflict, "Already tracked", res.Message())
	case app.AddNotFound:
		writeProblem(w, http.StatusNotFound, "Not Found", res.Message())
	case app.AddUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(60))
		writeProblem(w, http.StatusServiceUnavailable, "Marketplace unavailable", res.Message())
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid article", res.Message())
	}
}

func (h *Handlers) removeProduct(w http.ResponseWriter, r *http.Request) {
	res, err := h.C.Remove(r.Context(), chi.URLParam(r, "article"))
	switch {
	case errors.Is(err, domain.ErrInvalidArticle):
		writeProblem(w, http.StatusBadRequest, "Invalid article", app.ErrorMessage(err))
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	if res.Status == app.RemoveNotFound {
		writeProblem(w, http.StatusNotFound, "Not Found", res.Message())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	limit := app.DefaultReviewLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > app.MaxReviewLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	out, err := h.Q.ListReviews(r.Context(), chi.URLParam(r, "article"), limit)
	switch {
	case errors.Is(err, domain.ErrInvalidArticle):
		writeProblem(w, http.StatusBadRequest, "Invalid article", app.ErrorMessage(err))
		return
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "product is not tracked")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	writeCached(w, r, toReviewsView(out))
}
