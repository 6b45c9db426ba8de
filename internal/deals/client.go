// Package deals queries the external shopping deal-search service for
// current offers on a product. Results are cached; an empty result list
// is a valid, non-error outcome.
package deals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/errors"
	"github.com/cartwatch/cartwatch-go/internal/logging"
)

// Package-level logger specific to the deals service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "deals.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "deals", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize deals file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "deals")
		closeLogger = func() error { return nil }
	}
}

// Deal is a single offer returned by the deal-search service.
type Deal struct {
	Title string `json:"title"`
	Price string `json:"price"`
	Store string `json:"store"`
}

// Client is an HTTP client for the deal-search service with TTL
// caching of search results.
type Client struct {
	settings   conf.DealsSettings
	httpClient *http.Client
	cache      *cache.Cache
}

// NewClient creates a deal-search client from settings.
func NewClient(settings conf.DealsSettings) (*Client, error) {
	if settings.Endpoint == "" {
		return nil, errors.Newf("deal search endpoint is required").
			Component("deals").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Timeout == 0 {
		settings.Timeout = 20 * time.Second
	}
	if settings.CacheTTL == 0 {
		settings.CacheTTL = time.Hour
	}

	return &Client{
		settings:   settings,
		httpClient: &http.Client{Timeout: settings.Timeout},
		cache:      cache.New(settings.CacheTTL, 2*settings.CacheTTL),
	}, nil
}

// Close releases client resources, including the service log file.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing deals logger: %v", err)
		}
	}
}

// Search queries the service for current deals matching the query.
func (c *Client) Search(ctx context.Context, query string) ([]Deal, error) {
	if cached, found := c.cache.Get(query); found {
		logger.Debug("deal search cache hit", "query", query)
		return cached.([]Deal), nil
	}

	endpoint := fmt.Sprintf("%s?q=%s", c.settings.Endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("deals").
			Category(errors.CategoryNetwork).
			Build()
	}
	if c.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("deal search request failed", "query", query, "error", err)
		return nil, errors.Newf("deal search request: %w", err).
			Component("deals").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("deal search returned status %d", resp.StatusCode).
			Component("deals").
			Category(errors.CategoryDealSearch).
			Context("status", resp.StatusCode).
			Build()
	}

	var results []Deal
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Newf("decoding deal search response: %w", err).
			Component("deals").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	c.cache.Set(query, results, cache.DefaultExpiration)
	logger.Debug("deal search complete", "query", query, "deals", len(results))
	return results, nil
}
