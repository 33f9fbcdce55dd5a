package notify

import (
	"fmt"
	"strings"

	"wb_reviews/internal/domain"
)

const dateLayout = "02.01.2006 15:04"

// Stars renders a 1..5 rating as "★★☆☆☆ (2/5)".
func Stars(rating *int) string {
	if rating == nil {
		return "no rating"
	}
	n := min(max(*rating, 0), 5)
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n) + fmt.Sprintf(" (%d/5)", *rating)
}

// Format renders the plain-text message subscribers receive.
func Format(n domain.Notification) string {
	date := "unknown"
	if !n.Date.Equal(domain.SentinelDate) {
		date = n.Date.Format(dateLayout)
	}
	text := n.Text
	if text == "" {
		text = "(no text)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New review!\n")
	fmt.Fprintf(&b, "Product: %s (article %s)\n", n.ProductName, n.Article)
	fmt.Fprintf(&b, "Rating: %s\n", Stars(n.Rating))
	fmt.Fprintf(&b, "Review: %q\n", text)
	fmt.Fprintf(&b, "Author: %s\n", n.Author)
	fmt.Fprintf(&b, "Date: %s", date)
	return b.String()
}
