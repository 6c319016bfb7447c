package scraper

import (
	"errors"
	"fmt"

	"github.com/chelsseeey/price-watcher/models"
)

var (
	ErrNavigation    = errors.New("navigation failed")
	ErrBlocked       = errors.New("blocked by site")
	ErrPriceNotFound = errors.New("price not found")
)

// Failure kinds reported in run summaries
const (
	KindNavigation = "navigation"
	KindBlocked    = "blocked"
	KindNotFound   = "not_found"
	KindOther      = "other"
)

// ExtractionError is the terminal failure of one extraction attempt
type ExtractionError struct {
	State   models.AttemptState
	Site    string
	Profile string
	Item    string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s/%s/%s: %v", e.Site, e.Profile, e.Item, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// FailureKind classifies an error for reporting
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNavigation):
		return KindNavigation
	case errors.Is(err, ErrBlocked):
		return KindBlocked
	case errors.Is(err, ErrPriceNotFound):
		return KindNotFound
	default:
		return KindOther
	}
}
