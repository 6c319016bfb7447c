package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactSink stores diagnostic captures of a failed page. Nothing reads them back.
type ArtifactSink interface {
	Save(ctx context.Context, page Page, prefix string) ([]string, error)
}

// DirArtifactSink writes <prefix>_<timestamp>.png and .html files into Dir
type DirArtifactSink struct {
	Dir string
	Now func() time.Time
}

// NewDirArtifactSink creates a sink writing into dir
func NewDirArtifactSink(dir string) *DirArtifactSink {
	return &DirArtifactSink{Dir: dir, Now: time.Now}
}

func (s *DirArtifactSink) Save(ctx context.Context, page Page, prefix string) ([]string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	base := filepath.Join(s.Dir, fmt.Sprintf("%s_%s", prefix, now().Format("20060102_150405")))

	var (
		written []string
		errs    []error
	)
	if png, err := page.Screenshot(ctx); err == nil {
		if err := os.WriteFile(base+".png", png, 0o644); err != nil {
			errs = append(errs, err)
		} else {
			written = append(written, base+".png")
		}
	} else if !errors.Is(err, ErrNoRaster) {
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	}

	if html, err := page.HTML(ctx); err == nil {
		if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
			errs = append(errs, err)
		} else {
			written = append(written, base+".html")
		}
	} else {
		errs = append(errs, fmt.Errorf("html snapshot: %w", err))
	}
	return written, errors.Join(errs...)
}
