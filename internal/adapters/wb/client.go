// internal/adapters/wb/client.go
package wb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"wb_reviews/internal/adapters/observability"
	"wb_reviews/internal/domain"
)

// query parameters the public card endpoint expects alongside nm=<article>
var cardParams = url.Values{
	"appType":    {"1"},
	"curr":       {"rub"},
	"dest":       {"-1965487"},
	"spp":        {"30"},
	"hide_dtype": {"13"},
	"ab_testing": {"false"},
	"lang":       {"ru"},
}

type Client struct {
	cardBase     string
	feedbackBase string
	hc           *http.Client
	rl           *rate.Limiter
}

func New(cardBase, feedbackBase string, rps int) (*Client, error) {
	if cardBase == "" || feedbackBase == "" {
		return nil, fmt.Errorf("card and feedbacks base URLs are required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		cardBase:     cardBase,
		feedbackBase: strings.TrimRight(feedbackBase, "/"),
		hc:           &http.Client{Timeout: 20 * time.Second},
		rl:           rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) FetchProduct(ctx context.Context, article string) (domain.ProductInfo, error) {
	q := url.Values{}
	for k, v := range cardParams {
		q[k] = v
	}
	q.Set("nm", article)

	var out cardResponse
	if err := c.get(ctx, "card", c.cardBase+"?"+q.Encode(), &out); err != nil {
		return domain.ProductInfo{}, err
	}
	info, ok := out.productInfo()
	if !ok {
		log.Debug().Str("article", article).Msg("product missing from card response")
		return domain.ProductInfo{}, domain.ErrNotFound
	}
	log.Info().Str("article", article).Str("name", info.Name).Msg("product found")
	return info, nil
}

func (c *Client) FetchReviews(ctx context.Context, article string, since *time.Time) ([]domain.ReviewRecord, error) {
	var out feedbacksResponse
	if err := c.get(ctx, "feedbacks", c.feedbackBase+"/"+url.PathEscape(article), &out); err != nil {
		return nil, err
	}
	recs := normalizeFeedbacks(article, out.Feedbacks, since)
	log.Info().Str("article", article).Int("received", len(out.Feedbacks)).Int("kept", len(recs)).Msg("reviews fetched")
	return recs, nil
}

// ---- Internals ----

// get fetches u and decodes the JSON body into out, retrying per defaultRetry.
// 404 maps to domain.ErrNotFound; every other failure wraps domain.ErrTransient.
func (c *Client) get(ctx context.Context, endpoint, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	pol := defaultRetry
	var lastErr error
	for attempt := 0; attempt < pol.attempts; attempt++ {
		if attempt > 0 {
			if err := pol.pause(ctx, pol.delay(attempt-1, lastHeader(lastErr))); err != nil {
				return err
			}
		}

		status, hdr, err := c.once(ctx, endpoint, u, out)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case status == http.StatusNotFound:
			return domain.ErrNotFound
		case status == 0 || pol.retryable(status):
			lastErr = &attemptError{err: err, header: hdr}
		default:
			return err
		}
	}
	return errors.Unwrap(lastErr)
}

// once performs a single request. status is 0 when no response arrived.
func (c *Client) once(ctx context.Context, endpoint, u string, out any) (int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return -1, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "wb-reviews/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("wb", endpoint, 0, time.Since(start))
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("wb", endpoint, resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return -1, nil, fmt.Errorf("%w: decode %s: %v", domain.ErrTransient, endpoint, err)
		}
		return resp.StatusCode, nil, nil
	case http.StatusNoContent:
		return resp.StatusCode, nil, nil
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, resp.Header, fmt.Errorf("%w: %s status %d: %s",
			domain.ErrTransient, endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
	}
}

// attemptError keeps the response headers of a retryable failure for the next delay.
type attemptError struct {
	err    error
	header http.Header
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func lastHeader(err error) http.Header {
	var ae *attemptError
	if errors.As(err, &ae) && ae.header != nil {
		return ae.header
	}
	return http.Header{}
}
