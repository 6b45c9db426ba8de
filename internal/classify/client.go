// Package classify talks to the external object classification service
// and rate-limits how often it is called, reusing the previous result
// inside the cooldown window.
package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/errors"
	"github.com/cartwatch/cartwatch-go/internal/jsonutil"
	"github.com/cartwatch/cartwatch-go/internal/logging"
)

// Package-level logger specific to the classify service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "classify.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "classify", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize classify file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "classify")
		closeLogger = func() error { return nil }
	}
}

// Result is one classified object as reported by the service.
type Result struct {
	ObjectName string  `json:"object_name"`
	Brand      string  `json:"brand"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// defaultPrompt instructs the service to only classify grocery items
// held up to the camera by a hand, with sentinel responses otherwise.
const defaultPrompt = "You are an assistant that identifies grocery items being held up to the camera by a hand. " +
	"ONLY classify objects that are being held up by a visible hand in the image. " +
	"Be VERY careful and accurate - only identify items you can clearly see and recognize. " +
	"If no hand is holding an object, respond with: {\"object_name\": \"no_hand_holding_object\", \"brand\": \"N/A\", \"category\": \"other\", \"confidence\": 0.0} " +
	"If you cannot clearly identify what the item is, respond with: {\"object_name\": \"unidentifiable_item\", \"brand\": \"N/A\", \"category\": \"other\", \"confidence\": 0.0} " +
	"Look at this image and respond with a JSON object containing the following keys: object_name, brand, category, confidence. " +
	"object_name should be the specific name of the grocery item being held (be precise). " +
	"brand should be the brand name of the item (only if clearly visible). " +
	"category should be a grocery category (e.g., 'food', 'beverage', 'snack'). " +
	"confidence should be a number between 0 and 1 indicating how confident you are that a hand is holding a clearly identifiable grocery item. " +
	"Only detect grocery items that are clearly being held up by a hand to the camera and that you can confidently identify."

// Client is an HTTP client for the classification service.
type Client struct {
	settings   conf.ClassifierSettings
	httpClient *http.Client
	prompt     string
}

// NewClient creates a classifier client from settings.
func NewClient(settings conf.ClassifierSettings) (*Client, error) {
	if settings.Endpoint == "" {
		return nil, errors.Newf("classifier endpoint is required").
			Component("classify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}

	return &Client{
		settings:   settings,
		httpClient: &http.Client{Timeout: settings.Timeout},
		prompt:     defaultPrompt,
	}, nil
}

// Close releases client resources, including the service log file.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing classify logger: %v", err)
		}
	}
}

type classifyRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	ImageData string `json:"image_data"` // base64-encoded JPEG
}

// Classify sends the image at the given path to the service and parses
// the classification payload. A malformed payload is tolerated: the
// fallback is a single low-confidence Unknown record, never an error.
// Transport failures are returned as errors for the dispatcher to
// record.
func (c *Client) Classify(ctx context.Context, imagePath string) ([]Result, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, errors.Newf("reading capture image: %w", err).
			Component("classify").
			Category(errors.CategoryFileIO).
			Context("image_path", imagePath).
			Build()
	}

	body, err := json.Marshal(classifyRequest{
		Model:     c.settings.Model,
		Prompt:    c.prompt,
		ImageData: base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("classify").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(err).
			Component("classify").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if c.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("classifier request failed", "error", err)
		return nil, errors.Newf("classifier request: %w", err).
			Component("classify").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf("reading classifier response: %w", err).
			Component("classify").
			Category(errors.CategoryNetwork).
			Build()
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("classifier returned error status",
			"status", resp.StatusCode, "body", truncate(string(respBody), 200))
		return nil, errors.Newf("classifier returned status %d", resp.StatusCode).
			Component("classify").
			Category(errors.CategoryClassifier).
			Context("status", resp.StatusCode).
			Build()
	}

	results := parsePayload(string(respBody))
	logger.Debug("classification complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"objects", len(results))
	return results, nil
}

// parsePayload decodes a classification response: a single object, an
// array of objects, or garbage. Garbage degrades to one low-confidence
// Unknown record so the pipeline keeps moving.
func parsePayload(raw string) []Result {
	payload := jsonutil.Extract(raw)

	var single Result
	if err := json.Unmarshal([]byte(payload), &single); err == nil && single.ObjectName != "" {
		return []Result{single}
	}

	var many []Result
	if err := json.Unmarshal([]byte(payload), &many); err == nil && len(many) > 0 {
		return many
	}

	logger.Warn("unparseable classification payload", "raw", truncate(raw, 200))
	return []Result{{
		ObjectName: "Unknown",
		Brand:      "Unknown",
		Category:   "Unknown",
		Confidence: 0.5,
	}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
