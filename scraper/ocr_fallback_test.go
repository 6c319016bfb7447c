package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ocrFunc func(ctx context.Context, image []byte, lang string) (string, error)

func (f ocrFunc) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	return f(ctx, image, lang)
}

func TestHTTPOCRClientRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ocr":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			img, err := base64.StdEncoding.DecodeString(req["image_data"])
			require.NoError(t, err)
			if string(img) != "png-bytes" {
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "bad image"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "₩" + req["lang"]})
		case "/health":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := NewHTTPOCRClient(srv.URL)
	text, err := c.Recognize(context.Background(), []byte("png-bytes"), "kor")
	require.NoError(t, err)
	assert.Equal(t, "₩kor", text)

	_, err = c.Recognize(context.Background(), []byte("garbage"), "kor")
	assert.ErrorContains(t, err, "bad image")

	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestHTTPOCRClientUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPOCRClient(srv.URL)
	assert.Error(t, c.HealthCheck(context.Background()))
	_, err := c.Recognize(context.Background(), []byte("x"), "eng")
	assert.Error(t, err)
}

func TestOCRFallbackExtract(t *testing.T) {
	t.Run("longest digit run", func(t *testing.T) {
		o := &OCRFallback{Client: ocrFunc(func(ctx context.Context, image []byte, lang string) (string, error) {
			return "Qty 2   Total  1,234,500\nRating 4.5", nil
		})}
		c := o.Extract(context.Background(), []byte("png"))
		require.NotNil(t, c)
		assert.Equal(t, "1234500", c.Amount.String())
		assert.Equal(t, models.StrategyOCR, c.Strategy)
		assert.Equal(t, "Qty 2 Total 1,234,500 Rating 4.5", c.RawText)
	})

	t.Run("recognition error yields nothing", func(t *testing.T) {
		o := &OCRFallback{Client: ocrFunc(func(ctx context.Context, image []byte, lang string) (string, error) {
			return "", errors.New("tesseract missing")
		})}
		assert.Nil(t, o.Extract(context.Background(), []byte("png")))
	})

	t.Run("no digits", func(t *testing.T) {
		o := &OCRFallback{Client: ocrFunc(func(ctx context.Context, image []byte, lang string) (string, error) {
			return "Sold out", nil
		})}
		assert.Nil(t, o.Extract(context.Background(), []byte("png")))
	})

	t.Run("no image or client", func(t *testing.T) {
		var nilFallback *OCRFallback
		assert.Nil(t, nilFallback.Extract(context.Background(), []byte("png")))
		assert.Nil(t, (&OCRFallback{}).Extract(context.Background(), []byte("png")))
	})
}
