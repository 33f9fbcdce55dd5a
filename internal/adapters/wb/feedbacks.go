package wb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"wb_reviews/internal/domain"
)

const anonymousAuthor = "Anonymous"

/********** wire types **********/

type cardResponse struct {
	Data *struct {
		Products []cardProduct `json:"products"`
	} `json:"data"`
}

type cardProduct struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

// productInfo returns the first product when it carries both id and name.
func (r cardResponse) productInfo() (domain.ProductInfo, bool) {
	if r.Data == nil || len(r.Data.Products) == 0 {
		return domain.ProductInfo{}, false
	}
	p := r.Data.Products[0]
	if p.ID == nil || p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		return domain.ProductInfo{}, false
	}
	return domain.ProductInfo{Article: strconv.FormatInt(*p.ID, 10), Name: *p.Name}, true
}

// Entries stay raw so one malformed feedback cannot fail the whole batch.
type feedbacksResponse struct {
	Feedbacks []json.RawMessage `json:"feedbacks"`
}

type feedback struct {
	ID               feedbackID   `json:"id"`
	ProductValuation *json.Number `json:"productValuation"`
	Text             *string      `json:"text"`
	Pros             *string      `json:"pros"`
	Cons             *string      `json:"cons"`
	CreatedDate      *string      `json:"createdDate"`
	WBUserDetails    *struct {
		Name *string `json:"name"`
	} `json:"wbUserDetails"`
}

// feedbackID accepts the id as a JSON string or a bare number; null stays empty.
type feedbackID string

func (id *feedbackID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = feedbackID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("feedback id: %w", err)
	}
	*id = feedbackID(n.String())
	return nil
}

/********** normalization **********/

func normalizeFeedbacks(article string, raw []json.RawMessage, since *time.Time) []domain.ReviewRecord {
	out := make([]domain.ReviewRecord, 0, len(raw))
	for i, msg := range raw {
		var fb feedback
		if err := json.Unmarshal(msg, &fb); err != nil {
			log.Warn().Err(err).Str("article", article).Int("index", i).Msg("malformed feedback dropped")
			continue
		}
		rec, ok := fb.record(article)
		if !ok {
			continue
		}
		if since != nil && !rec.HasSentinelDate() && !rec.ReviewDate.After(*since) {
			log.Debug().Str("article", article).Str("external_id", rec.ExternalID).
				Time("review_date", rec.ReviewDate).Msg("feedback older than watermark, skipped")
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (fb feedback) record(article string) (domain.ReviewRecord, bool) {
	id := strings.TrimSpace(string(fb.ID))
	if id == "" {
		log.Warn().Str("article", article).Msg("feedback without id dropped")
		return domain.ReviewRecord{}, false
	}

	rating := parseRating(fb.ProductValuation)
	text := strings.TrimSpace(deref(fb.Text))
	if text == "" {
		text = prosCons(deref(fb.Pros), deref(fb.Cons))
	}
	if text == "" && rating == nil {
		log.Debug().Str("article", article).Str("external_id", id).Msg("feedback without text and rating dropped")
		return domain.ReviewRecord{}, false
	}

	author := anonymousAuthor
	if fb.WBUserDetails != nil {
		if n := strings.TrimSpace(deref(fb.WBUserDetails.Name)); n != "" {
			author = n
		}
	}

	date, ok := parseDate(deref(fb.CreatedDate))
	if !ok {
		log.Warn().Str("article", article).Str("external_id", id).
			Str("created_date", deref(fb.CreatedDate)).Msg("unparseable review date, using sentinel")
	}

	return domain.ReviewRecord{
		ExternalID: id,
		Rating:     rating,
		Text:       text,
		Author:     author,
		ReviewDate: date,
	}, true
}

// parseRating accepts 1..5 (ints or integral floats); anything else is unknown.
func parseRating(n *json.Number) *int {
	if n == nil {
		return nil
	}
	f, err := n.Float64()
	if err != nil || f != float64(int(f)) || f < 1 || f > 5 {
		return nil
	}
	r := int(f)
	return &r
}

// prosCons synthesizes review text from the structured fields.
func prosCons(pros, cons string) string {
	pros, cons = strings.TrimSpace(pros), strings.TrimSpace(cons)
	var parts []string
	if pros != "" {
		parts = append(parts, "Pros: "+pros)
	}
	if cons != "" {
		parts = append(parts, "Cons: "+cons)
	}
	return strings.Join(parts, "\n")
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate returns the UTC instant, or SentinelDate and false.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.SentinelDate, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return domain.SentinelDate, false
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
