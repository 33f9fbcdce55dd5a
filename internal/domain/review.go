package domain

import "time"

// SentinelDate replaces review dates the source did not provide or that failed to parse.
var SentinelDate = time.Unix(0, 0).UTC()

type Review struct {
	ID         int64
	ProductID  int64
	ExternalID string // globally unique, the dedup key
	Rating     *int   // 1..5, nil when the source omitted it
	Text       string
	Author     string
	ReviewDate time.Time
	IsNotified bool
	CreatedAt  time.Time
}

// ReviewRecord is a normalized review as returned by the gateway.
type ReviewRecord struct {
	ExternalID string
	Rating     *int
	Text       string
	Author     string
	ReviewDate time.Time
}

// HasSentinelDate reports whether the source date was unknown.
func (r ReviewRecord) HasSentinelDate() bool { return r.ReviewDate.Equal(SentinelDate) }

// Notification is the payload handed to a Sink for one new review.
type Notification struct {
	ProductName string    `json:"product_name"`
	Article     string    `json:"article"`
	ExternalID  string    `json:"external_id"`
	Rating      *int      `json:"rating,omitempty"`
	Text        string    `json:"text"`
	Author      string    `json:"author"`
	Date        time.Time `json:"date"`
}
