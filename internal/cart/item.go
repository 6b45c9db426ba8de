// Package cart implements the authoritative shopping cart state: item
// identity, brand normalization, duplicate similarity scoring, the
// reconciliation merge pass and summary reporting.
package cart

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DealAnalysis is the conversational shopping summary attached to an
// item by the background enrichment pass.
type DealAnalysis struct {
	BestDealMessage    string `json:"best_deal_message"`
	AlternativeMessage string `json:"alternative_message"`
}

// Item is a single distinct product in the cart. Items are keyed by
// Key(name, brand); at most one item exists per normalized identity.
type Item struct {
	Name         string        `json:"name"`
	Brand        string        `json:"brand"`
	Category     string        `json:"category"`
	Count        int           `json:"count"`
	Confidence   float64       `json:"confidence"`
	LastSeen     time.Time     `json:"last_seen"`
	DealAnalysis *DealAnalysis `json:"deal_analysis"`
	Price        *float64      `json:"price,omitempty"`
	ImagePath    string        `json:"image_path,omitempty"`
}

// Key builds the cart key for an item: lowercased name joined with the
// normalized brand. Brand normalization happens before keying so that
// "Coke" and "Coca-Cola" variants collapse to the same identity.
func Key(name, normalizedBrand string) string {
	return strings.ToLower(fmt.Sprintf("%s_%s", name, normalizedBrand))
}

// Summary aggregates cart totals for reporting and persistence.
type Summary struct {
	TotalItems        int      `json:"total_items"`
	UniqueItems       int      `json:"unique_items"`
	Categories        []string `json:"categories"`
	Brands            []string `json:"brands"`
	ItemsWithDealInfo int      `json:"items_with_deal_analysis"`
	TotalPrice        float64  `json:"total_price"`
}

func buildSummary(items map[string]*Item) Summary {
	summary := Summary{UniqueItems: len(items)}

	categories := make(map[string]struct{})
	brands := make(map[string]struct{})

	for _, item := range items {
		summary.TotalItems += item.Count
		categories[item.Category] = struct{}{}
		brands[item.Brand] = struct{}{}
		if item.DealAnalysis != nil {
			summary.ItemsWithDealInfo++
		}
		if item.Price != nil {
			count := item.Count
			if count < 1 {
				count = 1
			}
			summary.TotalPrice += *item.Price * float64(count)
		}
	}

	summary.TotalPrice = roundCents(summary.TotalPrice)
	summary.Categories = sortedKeys(categories)
	summary.Brands = sortedKeys(brands)
	return summary
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
