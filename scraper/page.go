package scraper

import (
	"context"

	"github.com/chelsseeey/price-watcher/models"
)

// ElementQuery selects elements for the DOM candidate extractor.
// Contains filters matches by text before Limit applies.
type ElementQuery struct {
	Selector string
	Attr     string
	Contains string
	Limit    int
}

// ElementSnapshot is what the extractors need to know about one rendered element
type ElementSnapshot struct {
	Text string `json:"text"`
	// Attr is the value of the queried attribute, empty when none was requested or it is absent.
	Attr          string   `json:"attr"`
	Class         string   `json:"class"`
	AncestorClass []string `json:"ancestor_class"`
	// AncestorText holds the text of the nearest ancestors, closest first.
	AncestorText []string `json:"ancestor_text"`
	LineThrough  bool     `json:"line_through"`
	AriaHidden   bool     `json:"aria_hidden"`
	Visible      bool     `json:"visible"`
	FontSize     float64  `json:"font_size"`
}

// CardField reads one named field inside a card
type CardField struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
	Attr     string `yaml:"attr" json:"attr"`
	Multi    bool   `yaml:"multi" json:"multi"`
}

// CardQuery selects list cards (rooms, itineraries) and their fields
type CardQuery struct {
	Selector string      `yaml:"selector" json:"selector"`
	Limit    int         `yaml:"limit" json:"limit"`
	Fields   []CardField `yaml:"fields" json:"fields"`
}

// CardSnapshot is one card with its full text and the values of each field
type CardSnapshot struct {
	Index  int                 `json:"index"`
	Text   string              `json:"text"`
	Fields map[string][]string `json:"fields"`
}

// Page is a rendered document. RodPage drives a live browser, StaticPage reads saved HTML.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	Query(ctx context.Context, q ElementQuery) ([]ElementSnapshot, error)
	// ScanVisible returns visible leaf-level elements whose own text contains a digit.
	ScanVisible(ctx context.Context) ([]ElementSnapshot, error)
	Cards(ctx context.Context, q CardQuery) ([]CardSnapshot, error)
	Scroll(ctx context.Context, dy int) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// SessionFactory opens a fresh rendering session for one task
type SessionFactory interface {
	Open(ctx context.Context, site *SiteConfig, profile models.EnvironmentProfile) (Page, error)
}

// OCRClient recognizes text in a raster image
type OCRClient interface {
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
}
