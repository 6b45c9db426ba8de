package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cartwatch/cartwatch-go/internal/cart"
	"github.com/cartwatch/cartwatch-go/internal/reasoning"
	"github.com/cartwatch/cartwatch-go/internal/results"
)

// prebakedDeal is a canned analysis served for well-known products
// without hitting the deal services.
type prebakedDeal struct {
	keywords []string
	cacheKey string
	price    float64
	analysis cart.DealAnalysis
}

var prebakedDeals = []prebakedDeal{
	{
		keywords: []string{"pringles", "pringle"},
		cacheKey: "pringles_products",
		price:    1.75,
		analysis: cart.DealAnalysis{
			BestDealMessage:    "It looks like the best deal for the Pringles Cheddar Cheese chips is $1.75 at Dollar General!",
			AlternativeMessage: "If you're open to a slight variation, the Pringles Cheddar & Sour Cream Potato Crisps are on sale for $2.19 at Target, which is a really popular flavor too.",
		},
	},
	{
		keywords: []string{"coca", "coke", "cola"},
		cacheKey: "coca_cola_products",
		price:    1.35,
		analysis: cart.DealAnalysis{
			BestDealMessage:    "It looks like the best deal for a single can of Coca Cola Original is $1.35 at Dollar General!",
			AlternativeMessage: "If you're open to trying something different, FANTA ORANGE SODA is on sale for $6.69 at Walgreens, which is a fun fruity option.",
		},
	},
}

// matchPrebakedDeal checks the item key, name and brand against the
// pre-baked keyword lists.
func matchPrebakedDeal(itemKey, name, brand string) *prebakedDeal {
	itemKey = strings.ToLower(itemKey)
	name = strings.ToLower(name)
	brand = strings.ToLower(brand)

	for i := range prebakedDeals {
		for _, kw := range prebakedDeals[i].keywords {
			if strings.Contains(itemKey, kw) || strings.Contains(name, kw) || strings.Contains(brand, kw) {
				return &prebakedDeals[i]
			}
		}
	}
	return nil
}

// enrichAction is the background job that attaches deal analysis to a
// newly added cart item.
type enrichAction struct {
	proc      *Processor
	key       string
	candidate reasoning.Candidate
}

func (a *enrichAction) Description() string {
	return fmt.Sprintf("deal enrichment for %s", a.candidate.Name)
}

// Execute looks up deals for the item and applies the resulting
// analysis to the cart entry. Cached and pre-baked answers short
// circuit the live services.
func (a *enrichAction) Execute(ctx context.Context) error {
	return a.proc.enrich(ctx, a.key, a.candidate)
}

func (p *Processor) enrich(ctx context.Context, key string, candidate reasoning.Candidate) error {
	now := p.now()

	if cached, ok := p.cachedAnalysis(key); ok {
		analysis := cached
		p.applyEnrichment(key, &analysis, nil)
		p.recordDeal(results.DealRecord{
			ID: uuid.New().String(), Timestamp: now,
			ItemName: candidate.Name, Brand: candidate.Brand,
			Success: true, Source: "cache", Analysis: &analysis,
		})
		p.metrics.DealAnalyses.WithLabelValues("cache").Inc()
		return nil
	}

	if deal := matchPrebakedDeal(key, candidate.Name, candidate.Brand); deal != nil {
		analysis := deal.analysis
		price := deal.price
		p.cacheAnalysis(key, analysis)
		p.applyEnrichment(key, &analysis, &price)
		p.recordDeal(results.DealRecord{
			ID: uuid.New().String(), Timestamp: now,
			ItemName: candidate.Name, Brand: candidate.Brand,
			Success: true, Source: "prebaked", Analysis: &analysis,
		})
		p.metrics.DealAnalyses.WithLabelValues("prebaked").Inc()
		logger.Info("pre-baked deal served", "item", candidate.Name, "cache_key", deal.cacheKey)
		return nil
	}

	query := strings.TrimSpace(candidate.Name + " " + candidate.Brand)
	record := results.DealRecord{
		ID: uuid.New().String(), Timestamp: now,
		ItemName: candidate.Name, Brand: candidate.Brand,
		Query: query, Source: "live",
	}

	dealList, err := p.dealSearch.Search(ctx, query)
	if err != nil {
		record.Error = err.Error()
		p.recordDeal(record)
		p.metrics.DealAnalyses.WithLabelValues("search_error").Inc()
		return err
	}
	record.DealsFound = len(dealList)
	record.Deals = dealList

	if len(dealList) == 0 {
		record.Error = "no deals found"
		p.recordDeal(record)
		p.metrics.DealAnalyses.WithLabelValues("no_deals").Inc()
		return nil
	}

	if p.settings.Deals.MaxDeals > 0 && len(dealList) > p.settings.Deals.MaxDeals {
		dealList = dealList[:p.settings.Deals.MaxDeals]
	}

	analysis, err := p.reasoner.AnalyzeDeals(ctx, candidate, dealList)
	if err != nil {
		record.Error = err.Error()
		p.recordDeal(record)
		p.metrics.DealAnalyses.WithLabelValues("analysis_error").Inc()
		return err
	}

	record.Success = true
	record.Analysis = analysis
	p.cacheAnalysis(key, *analysis)
	p.applyEnrichment(key, analysis, nil)
	p.recordDeal(record)
	p.metrics.DealAnalyses.WithLabelValues("success").Inc()
	return nil
}

// applyEnrichment writes the analysis onto the cart entry. The store
// drops the patch if the entry vanished in the meantime.
func (p *Processor) applyEnrichment(key string, analysis *cart.DealAnalysis, price *float64) {
	if !p.store.ApplyDealAnalysis(key, analysis, price) {
		logger.Debug("cart entry gone before enrichment applied", "key", key)
	}
}

func (p *Processor) cachedAnalysis(key string) (cart.DealAnalysis, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	analysis, ok := p.dealCache[key]
	return analysis, ok
}

func (p *Processor) cacheAnalysis(key string, analysis cart.DealAnalysis) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dealCache[key] = analysis
}

func (p *Processor) recordDeal(record results.DealRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dealRecords = append(p.dealRecords, record)
}
