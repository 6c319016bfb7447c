package scraper

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/rs/zerolog/log"
)

// DefaultOCRLang recognizes mixed English and Korean text
const DefaultOCRLang = "eng+kor"

const ocrSnippetRunes = 200

// HTTPOCRClient calls the OCR sidecar service
type HTTPOCRClient struct {
	serviceURL string
	client     *http.Client
}

// ocrResponse represents the response from the OCR service
type ocrResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewHTTPOCRClient creates a client for the OCR service at serviceURL
func NewHTTPOCRClient(serviceURL string) *HTTPOCRClient {
	if serviceURL == "" {
		serviceURL = "http://ocr-service:5000"
	}

	return &HTTPOCRClient{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 90 * time.Second, // full-page images are slow to recognize
		},
	}
}

// Recognize sends a raster image and returns the recognized text
func (c *HTTPOCRClient) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	payload := map[string]string{
		"image_data": base64.StdEncoding.EncodeToString(image),
		"lang":       lang,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/ocr", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call OCR service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var ocrResp ocrResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return "", fmt.Errorf("failed to parse OCR response (status %d): %w", resp.StatusCode, err)
	}
	if !ocrResp.Success {
		return "", fmt.Errorf("OCR service error: %s", ocrResp.Error)
	}
	return ocrResp.Text, nil
}

// HealthCheck checks if the OCR service is healthy
func (c *HTTPOCRClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("OCR service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OCR service unhealthy (status: %d)", resp.StatusCode)
	}
	return nil
}

// OCRFallback recovers a price from a screenshot. It never returns an error: failures mean no result.
type OCRFallback struct {
	Client OCRClient
	Lang   string
}

// Extract recognizes the image and picks the longest digit run
func (o *OCRFallback) Extract(ctx context.Context, image []byte) *models.Candidate {
	if o == nil || o.Client == nil || len(image) == 0 {
		return nil
	}
	lang := o.Lang
	if lang == "" {
		lang = DefaultOCRLang
	}

	text, err := o.Client.Recognize(ctx, image, lang)
	if err != nil {
		log.Debug().Err(err).Msg("ocr recognition failed")
		return nil
	}
	amount, ok := ParseDigitRun(text)
	if !ok || amount.IsZero() {
		log.Debug().Msg("ocr text has no digit run")
		return nil
	}

	snippet := []rune(collapseSpaces(text))
	if len(snippet) > ocrSnippetRunes {
		snippet = snippet[:ocrSnippetRunes]
	}
	return &models.Candidate{
		RawText:  string(snippet),
		Amount:   amount,
		Strategy: models.StrategyOCR,
		Detail:   "full-page",
	}
}
