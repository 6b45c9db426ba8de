// Package reasoning talks to the external reasoning service used for
// two jobs: deciding whether a freshly classified item duplicates
// something already in the cart, and turning raw deal listings into a
// conversational shopping summary. The duplicate check fails open: a
// service outage must never block a legitimate cart add.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cartwatch/cartwatch-go/internal/cart"
	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/deals"
	"github.com/cartwatch/cartwatch-go/internal/errors"
	"github.com/cartwatch/cartwatch-go/internal/jsonutil"
	"github.com/cartwatch/cartwatch-go/internal/logging"
)

// Package-level logger specific to the reasoning service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "reasoning.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "reasoning", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize reasoning file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "reasoning")
		closeLogger = func() error { return nil }
	}
}

// Verdict is the reasoning service's answer to a duplicate check.
type Verdict struct {
	IsDuplicate bool    `json:"is_duplicate"`
	SimilarItem string  `json:"similar_item"`
	TimeDiff    float64 `json:"time_diff"`
	Reason      string  `json:"reason"`
}

// Candidate is the item under consideration for a cart add.
type Candidate struct {
	Name     string
	Brand    string
	Category string
}

// Client is an HTTP client for the reasoning service.
type Client struct {
	settings   conf.ReasoningSettings
	httpClient *http.Client
}

// NewClient creates a reasoning client from settings.
func NewClient(settings conf.ReasoningSettings) (*Client, error) {
	if settings.Endpoint == "" {
		return nil, errors.Newf("reasoning endpoint is required").
			Component("reasoning").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.FuzzyMatchWindow == 0 {
		settings.FuzzyMatchWindow = 10 * time.Second
	}

	return &Client{
		settings:   settings,
		httpClient: &http.Client{Timeout: settings.Timeout},
	}, nil
}

// Close releases client resources, including the service log file.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing reasoning logger: %v", err)
		}
	}
}

const duplicateCheckPrompt = `You are helping to manage a shopping cart. I will provide you with:
1. A new item that was just detected: %s
2. The current shopping cart contents: %s
3. The timestamp when each item was added: %s
4. Current time: %s

Please determine if the new item is the same as or very similar to any item in the cart that was added within the last %.0f seconds. Consider items similar if they are the same product (e.g., 'Diet Coke can' and 'Diet Coke' are the same, 'Pringles can' and 'Pringles Original Potato Crisps' are similar).

Respond ONLY with a valid JSON object (no markdown, no code blocks, no extra text):
{
  "is_duplicate": true,
  "similar_item": "item name if duplicate, empty string otherwise",
  "time_diff": 0,
  "reason": "brief explanation"
}
Make sure the JSON is valid and parseable.`

// CheckDuplicate asks the service whether the candidate duplicates an
// item already in the cart, given the full cart contents and each
// item's last-seen timestamp. Any transport or parse failure yields a
// negative verdict.
func (c *Client) CheckDuplicate(ctx context.Context, candidate Candidate, cartItems []cart.Item, now time.Time) Verdict {
	contents := make([]string, 0, len(cartItems))
	timestamps := make([]string, 0, len(cartItems))
	for i := range cartItems {
		item := &cartItems[i]
		contents = append(contents, fmt.Sprintf("- %s (%s) - %s", item.Name, item.Brand, item.Category))
		timestamps = append(timestamps, fmt.Sprintf("- %s: %s", item.Name, item.LastSeen.Format(time.RFC3339)))
	}

	cartText := "Cart is empty"
	if len(contents) > 0 {
		cartText = strings.Join(contents, "\n")
	}
	timesText := "No timestamps"
	if len(timestamps) > 0 {
		timesText = strings.Join(timestamps, "\n")
	}

	prompt := fmt.Sprintf(duplicateCheckPrompt,
		fmt.Sprintf("%s (%s) - %s", candidate.Name, candidate.Brand, candidate.Category),
		cartText,
		timesText,
		now.Format(time.RFC3339),
		c.settings.FuzzyMatchWindow.Seconds(),
	)

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		logger.Warn("duplicate check unavailable, failing open", "item", candidate.Name, "error", err)
		return Verdict{}
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(jsonutil.Extract(raw)), &verdict); err != nil {
		logger.Warn("unparseable duplicate check response, failing open",
			"item", candidate.Name, "raw", truncate(raw, 200), "error", err)
		return Verdict{}
	}

	if verdict.IsDuplicate {
		logger.Info("semantic duplicate detected",
			"item", candidate.Name, "similar_item", verdict.SimilarItem, "reason", verdict.Reason)
	}
	return verdict
}

const dealAnalysisPrompt = `You are a friendly shopping assistant. I detected: %s (%s) - %s
Here are current deals:
%s

Give me 2 conversational sentences:
1. Tell me the best deal for THIS EXACT product and where to get it
2. Suggest ONE good alternative product I could consider instead

Respond ONLY with valid JSON (no markdown, no code blocks):
{
  "best_deal_message": "The best deal for [product] is $X.XX at [store].",
  "alternative_message": "You might also consider [alternative product] for $X.XX at [store], which [reason]."
}
Keep it natural and conversational. Make sure the JSON is valid.`

// AnalyzeDeals turns raw deal listings into the two-message shopping
// summary stored on a cart item.
func (c *Client) AnalyzeDeals(ctx context.Context, candidate Candidate, dealList []deals.Deal) (*cart.DealAnalysis, error) {
	if len(dealList) == 0 {
		return nil, errors.Newf("no deals to analyze for %s", candidate.Name).
			Component("reasoning").
			Category(errors.CategoryValidation).
			Build()
	}

	lines := make([]string, 0, len(dealList))
	for _, deal := range dealList {
		lines = append(lines, fmt.Sprintf("- %s | %s | %s", deal.Title, deal.Price, deal.Store))
	}

	prompt := fmt.Sprintf(dealAnalysisPrompt,
		candidate.Name, candidate.Brand, candidate.Category, strings.Join(lines, "\n"))

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var analysis cart.DealAnalysis
	if err := json.Unmarshal([]byte(jsonutil.Extract(raw)), &analysis); err != nil {
		return nil, errors.Newf("decoding deal analysis: %w", err).
			Component("reasoning").
			Category(errors.CategoryJSONParsing).
			Context("raw", truncate(raw, 200)).
			Build()
	}
	if analysis.BestDealMessage == "" {
		analysis.BestDealMessage = "No deal information available"
	}
	if analysis.AlternativeMessage == "" {
		analysis.AlternativeMessage = "No alternatives found"
	}
	return &analysis, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// generate sends a prompt to the service and returns the raw response
// text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.settings.Model, Prompt: prompt})
	if err != nil {
		return "", errors.New(err).
			Component("reasoning").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.New(err).
			Component("reasoning").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if c.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Newf("reasoning request: %w", err).
			Component("reasoning").
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
		return "", errors.Newf("reading reasoning response: %w", err).
			Component("reasoning").
			Category(errors.CategoryNetwork).
			Build()
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("reasoning service returned status %d", resp.StatusCode).
			Component("reasoning").
			Category(errors.CategoryReasoning).
			Context("status", resp.StatusCode).
			Build()
	}

	return string(respBody), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
