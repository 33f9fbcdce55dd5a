package notify

import (
	"bytes"
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

// TelegramSink sends each notification to every subscribed chat through the Bot API.
type TelegramSink struct {
	base    string
	token   string
	chatIDs []int64
	hc      *http.Client
	rl      *rate.Limiter
}

func NewTelegramSink(apiBase, token string, chatIDs []int64) (*TelegramSink, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	return &TelegramSink{
		base:    strings.TrimRight(apiBase, "/"),
		token:   token,
		chatIDs: chatIDs,
		hc:      &http.Client{Timeout: 10 * time.Second},
		// Bot API allows roughly 30 messages per second across chats
		rl: rate.NewLimiter(rate.Limit(25), 5),
	}, nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify succeeds when at least one chat received the message.
func (s *TelegramSink) Notify(ctx context.Context, n domain.Notification) error {
	if len(s.chatIDs) == 0 {
		err := errors.New("telegram: no subscribers configured")
		observability.ObserveNotification("telegram", err)
		return err
	}
	text := Format(n)

	var errs []error
	delivered := 0
	for _, chat := range s.chatIDs {
		if err := s.send(ctx, chat, text); err != nil {
			log.Warn().Err(err).Int64("chat_id", chat).Str("external_id", n.ExternalID).Msg("telegram delivery failed")
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	var err error
	if delivered == 0 {
		err = errors.Join(errs...)
	}
	observability.ObserveNotification("telegram", err)
	return err
}

func (s *TelegramSink) send(ctx context.Context, chatID int64, text string) error {
	if err := s.rl.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.base, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("telegram", "sendMessage", 0, time.Since(start))
		// the URL carries the token; keep it out of logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("telegram: send: %w", uerr.Err)
		}
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("telegram", "sendMessage", resp.StatusCode, time.Since(start))

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return fmt.Errorf("telegram: status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}
