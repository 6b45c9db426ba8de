// Package results assembles and persists the session results document.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated document behind.
package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cartwatch/cartwatch-go/internal/cart"
	"github.com/cartwatch/cartwatch-go/internal/classify"
	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/deals"
	"github.com/cartwatch/cartwatch-go/internal/errors"
	"github.com/cartwatch/cartwatch-go/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("results")
}

// DealRecord is one entry in the deal analysis audit trail.
type DealRecord struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	ItemName   string             `json:"item_name"`
	Brand      string             `json:"brand"`
	Query      string             `json:"query"`
	DealsFound int                `json:"deals_found"`
	Deals      []deals.Deal       `json:"deals,omitempty"`
	Success    bool               `json:"success"`
	Source     string             `json:"source"` // "live", "cache" or "prebaked"
	Error      string             `json:"error,omitempty"`
	Analysis   *cart.DealAnalysis `json:"analysis,omitempty"`
}

// DealSummary aggregates the audit trail.
type DealSummary struct {
	TotalAnalyses   int      `json:"total_analyses"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	CacheHits       int      `json:"cache_hits"`
	TotalDealsFound int      `json:"total_deals_found"`
	ItemsAnalyzed   []string `json:"items_analyzed"`
	CachedItems     int      `json:"cached_items"`
	CacheHitRate    float64  `json:"cache_hit_rate"`
}

// SummarizeDeals builds a DealSummary from audit records. cachedItems
// is the size of the session deal analysis cache.
func SummarizeDeals(records []DealRecord, cachedItems int) DealSummary {
	summary := DealSummary{
		TotalAnalyses: len(records),
		ItemsAnalyzed: []string{},
		CachedItems:   cachedItems,
	}
	seen := make(map[string]struct{})
	for i := range records {
		if records[i].Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
		if records[i].Source == "cache" || records[i].Source == "prebaked" {
			summary.CacheHits++
		}
		summary.TotalDealsFound += records[i].DealsFound
		if name := records[i].ItemName; name != "" {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				summary.ItemsAnalyzed = append(summary.ItemsAnalyzed, name)
			}
		}
	}
	sort.Strings(summary.ItemsAnalyzed)
	if summary.TotalAnalyses > 0 {
		summary.CacheHitRate = float64(summary.CacheHits) /
			float64(summary.TotalAnalyses) * 100
	}
	return summary
}

// Document is the full session state persisted to disk.
type Document struct {
	Timestamp              string                       `json:"timestamp"`
	TotalFramesProcessed   int                          `json:"total_frames_processed"`
	BagDetected            bool                         `json:"bag_detected"`
	BagDetectionConfidence float64                      `json:"bag_detection_confidence"`
	ShoppingCart           map[string]cart.Item         `json:"shopping_cart"`
	CartSummary            cart.Summary                 `json:"cart_summary"`
	AllClassifications     []classify.Record            `json:"all_classifications"`
	ClassificationSummary  classify.Summary             `json:"classification_summary"`
	DealAnalysisResults    []DealRecord                 `json:"deal_analysis_results"`
	DealAnalysisCache      map[string]cart.DealAnalysis `json:"deal_analysis_cache"`
	DealAnalysisSummary    DealSummary                  `json:"deal_analysis_summary"`
}

// Writer persists documents to a configured file path.
type Writer struct {
	path string
}

// NewWriter creates a writer for the configured results file.
func NewWriter(settings conf.ResultsSettings) (*Writer, error) {
	if settings.File == "" {
		return nil, errors.Newf("results file path is required").
			Component("results").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Writer{path: settings.File}, nil
}

// Path returns the destination file path.
func (w *Writer) Path() string {
	return w.path
}

// Write persists the document atomically.
func (w *Writer) Write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Newf("encoding results document: %w", err).
			Component("results").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Newf("creating results directory: %w", err).
				Component("results").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s-*", filepath.Base(w.path)))
	if err != nil {
		return errors.Newf("creating temp results file: %w", err).
			Component("results").
			Category(errors.CategoryFileIO).
			Build()
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Newf("writing results document: %w", err).
			Component("results").
			Category(errors.CategoryFileIO).
			Context("path", tmpName).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Newf("closing temp results file: %w", err).
			Component("results").
			Category(errors.CategoryFileIO).
			Build()
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Newf("renaming results file: %w", err).
			Component("results").
			Category(errors.CategoryFileIO).
			Context("path", w.path).
			Build()
	}

	logger.Debug("results written", "path", w.path, "bytes", len(data))
	return nil
}

// Load reads a previously written document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Newf("reading results file: %w", err).
			Component("results").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Newf("decoding results file: %w", err).
			Component("results").
			Category(errors.CategoryJSONParsing).
			Context("path", path).
			Build()
	}
	return &doc, nil
}
