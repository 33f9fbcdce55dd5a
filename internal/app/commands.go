package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wb_reviews/internal/domain"
)

type AddStatus int

const (
	AddOK AddStatus = iota
	AddAlreadyTracked
	AddNotFound
	AddUnavailable // marketplace could not be reached; try again later
	AddInvalid
)

type AddResult struct {
	Status  AddStatus
	Article string
	Product domain.Product
}

// Message is the plain-text reply for the user who issued the command.
func (r AddResult) Message() string {
	switch r.Status {
	case AddOK:
		return fmt.Sprintf("Product %q (article %s) added for monitoring.", r.Product.Name, r.Article)
	case AddAlreadyTracked:
		return fmt.Sprintf("Product with article %s is already being monitored.", r.Article)
	case AddNotFound:
		return fmt.Sprintf("Product with article %s was not found on the marketplace.", r.Article)
	case AddUnavailable:
		return fmt.Sprintf("The marketplace did not respond for article %s. Please try again later.", r.Article)
	default:
		return fmt.Sprintf("%q is not a valid article: use digits only.", r.Article)
	}
}

type RemoveStatus int

const (
	RemoveOK RemoveStatus = iota
	RemoveNotFound
)

type RemoveResult struct {
	Status  RemoveStatus
	Article string
}

func (r RemoveResult) Message() string {
	if r.Status == RemoveNotFound {
		return fmt.Sprintf("Product with article %s is not being monitored.", r.Article)
	}
	return fmt.Sprintf("Product with article %s removed from monitoring.", r.Article)
}

// ErrorMessage is the reply for an unexpected failure; details stay in the log.
func ErrorMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidArticle) {
		return "Invalid article: use digits only."
	}
	return "Something went wrong, please try again later."
}

type CommandService struct {
	store   domain.Store
	gateway domain.Gateway
	cache   domain.Cache
}

func NewCommandService(st domain.Store, gw domain.Gateway, cache domain.Cache) *CommandService {
	return &CommandService{store: st, gateway: gw, cache: cache}
}

// Add starts monitoring article. Outcomes the user can act on are statuses; the
// returned error is reserved for store failures.
func (s *CommandService) Add(ctx context.Context, raw string) (AddResult, error) {
	article := strings.TrimSpace(raw)
	res := AddResult{Article: article}
	if !ValidArticle(article) {
		res.Status = AddInvalid
		return res, nil
	}

	// 1) Already tracked? Checked in a short session of its own.
	var found bool
	err := withSession(ctx, s.store, func(sess domain.Session) error {
		p, err := sess.GetProductByArticle(ctx, article)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		res.Product, found = p, true
		return nil
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("lookup %s: %w", article, err)
	}
	if found {
		res.Status = AddAlreadyTracked
		return res, nil
	}

	// 2) Ask the marketplace with no session held.
	info, err := s.gateway.FetchProduct(ctx, article)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res.Status = AddNotFound
		return res, nil
	case err != nil:
		logger(ctx).Warn().Err(err).Str("article", article).Msg("product lookup failed")
		res.Status = AddUnavailable
		return res, nil
	}

	// 3) Insert; a concurrent add of the same article loses on the unique key.
	err = withSession(ctx, s.store, func(sess domain.Session) error {
		var err error
		res.Product, err = sess.InsertProduct(ctx, domain.Product{Article: article, Name: info.Name})
		return err
	})
	if errors.Is(err, domain.ErrConflict) {
		res.Status = AddAlreadyTracked
		res.Product = domain.Product{Article: article, Name: info.Name}
		return res, nil
	}
	if err != nil {
		return AddResult{}, fmt.Errorf("insert %s: %w", article, err)
	}

	invalidateProducts(ctx, s.cache)
	logger(ctx).Info().Str("article", article).Str("name", info.Name).Msg("product added")
	res.Status = AddOK
	return res, nil
}

// Remove stops monitoring article; its reviews are deleted with it.
func (s *CommandService) Remove(ctx context.Context, raw string) (RemoveResult, error) {
	article := strings.TrimSpace(raw)
	res := RemoveResult{Article: article}
	if !ValidArticle(article) {
		return res, domain.ErrInvalidArticle
	}

	err := withSession(ctx, s.store, func(sess domain.Session) error {
		return sess.DeleteProductByArticle(ctx, article)
	})
	if errors.Is(err, domain.ErrNotFound) {
		res.Status = RemoveNotFound
		return res, nil
	}
	if err != nil {
		return RemoveResult{}, fmt.Errorf("remove %s: %w", article, err)
	}

	invalidateProducts(ctx, s.cache)
	invalidateReviews(ctx, s.cache, article)
	logger(ctx).Info().Str("article", article).Msg("product removed")
	res.Status = RemoveOK
	return res, nil
}

// ValidArticle reports whether s is a non-empty run of ASCII digits.
func ValidArticle(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
