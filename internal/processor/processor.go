// Package processor wires the pipeline together: frames come in from
// the vision layer, interesting ones pass through classification, the
// duplicate filter and the cart, and the resulting state is persisted
// through a debounced flusher.
package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cartwatch/cartwatch-go/internal/cart"
	"github.com/cartwatch/cartwatch-go/internal/classify"
	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/deals"
	"github.com/cartwatch/cartwatch-go/internal/jobqueue"
	"github.com/cartwatch/cartwatch-go/internal/logging"
	"github.com/cartwatch/cartwatch-go/internal/observability"
	"github.com/cartwatch/cartwatch-go/internal/reasoning"
	"github.com/cartwatch/cartwatch-go/internal/results"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("processor")
}

// Reasoner is the slice of the reasoning client the processor needs.
type Reasoner interface {
	CheckDuplicate(ctx context.Context, candidate reasoning.Candidate, cartItems []cart.Item, now time.Time) reasoning.Verdict
	AnalyzeDeals(ctx context.Context, candidate reasoning.Candidate, dealList []deals.Deal) (*cart.DealAnalysis, error)
}

// DealSearcher finds current deals for a product query.
type DealSearcher interface {
	Search(ctx context.Context, query string) ([]deals.Deal, error)
}

// Processor owns the session state and runs classifications through
// the cart gates.
type Processor struct {
	settings   *conf.Settings
	store      *cart.Store
	dispatcher *classify.Dispatcher
	reasoner   Reasoner
	dealSearch DealSearcher
	queue      *jobqueue.Queue
	metrics    *observability.Metrics
	writer     *results.Writer
	flusher    *Flusher

	now func() time.Time

	mu          sync.Mutex
	frames      int
	dealRecords []results.DealRecord
	dealCache   map[string]cart.DealAnalysis
}

// Option customizes a Processor.
type Option func(*Processor)

// WithClock overrides the processor's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New assembles a processor from its collaborators.
func New(settings *conf.Settings, classifier classify.Classifier, reasoner Reasoner,
	dealSearch DealSearcher, writer *results.Writer, metrics *observability.Metrics,
	opts ...Option) *Processor {

	p := &Processor{
		settings:   settings,
		dispatcher: classify.NewDispatcher(classifier, settings.Classifier.Cooldown),
		reasoner:   reasoner,
		dealSearch: dealSearch,
		queue:      jobqueue.New(),
		metrics:    metrics,
		writer:     writer,
		now:        time.Now,
		dealCache:  make(map[string]cart.DealAnalysis),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.flusher = NewFlusher(settings.Results.FlushDelay, p.flushResults)
	p.store = cart.NewStore(
		cart.WithUpdateCooldown(settings.Cart.UpdateCooldown),
		cart.WithSimilarityThreshold(settings.Cart.SimilarityThreshold),
		cart.WithOnMutate(p.flusher.Notify),
	)
	return p
}

// Start brings up the background workers.
func (p *Processor) Start(ctx context.Context) {
	p.queue.StartWithContext(ctx)
}

// Shutdown drains background work and performs the final flush.
// Ordering matters: drain the queue so pending enrichments land in the
// cart, stop it, then flush once.
func (p *Processor) Shutdown() {
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for p.queue.PendingCount() > 0 && time.Now().Before(deadline) {
		p.queue.ProcessImmediately(ctx)
		p.queue.Wait()
		time.Sleep(10 * time.Millisecond)
	}
	if remaining := p.queue.PendingCount(); remaining > 0 {
		logger.Warn("abandoning unfinished background jobs", "remaining", remaining)
	}
	if err := p.queue.Stop(); err != nil {
		logger.Warn("job queue did not stop cleanly", "error", err)
	}
	p.flusher.Close()
}

// Store exposes the cart store.
func (p *Processor) Store() *cart.Store {
	return p.store
}

// FrameProcessed records one frame read from the source.
func (p *Processor) FrameProcessed() {
	p.mu.Lock()
	p.frames++
	p.mu.Unlock()
	p.metrics.FramesProcessed.Inc()
}

// HandleCapture runs a captured frame through classification and the
// cart gates.
func (p *Processor) HandleCapture(ctx context.Context, imagePath string, frameNumber int, source string) {
	now := p.now()
	classifications, record := p.dispatcher.Dispatch(ctx, imagePath, frameNumber, source, now)

	outcome := "api_call"
	if record.Skipped {
		outcome = "cooldown_reuse"
	} else if !record.Success {
		outcome = "error"
	}
	p.metrics.ClassificationCalls.WithLabelValues(outcome).Inc()

	for i := range classifications {
		p.handleClassification(ctx, &classifications[i], imagePath, now)
	}
}

// handleClassification applies the gate chain to one classified
// object: confidence, sentinel, bag, grocery, then duplicate checks.
func (p *Processor) handleClassification(ctx context.Context, result *classify.Result, imagePath string, now time.Time) {
	name := result.ObjectName
	if name == "" || cart.IsSentinel(name) {
		return
	}
	if result.Confidence < p.settings.Classifier.MinConfidence {
		logger.Debug("below confidence floor", "item", name, "confidence", result.Confidence)
		return
	}

	if cart.IsBag(name, result.Category) {
		p.store.SetBagDetected(result.Confidence)
		logger.Info("shopping bag detected", "confidence", result.Confidence)
		return
	}
	if !cart.IsGrocery(name, result.Category) {
		logger.Debug("non-grocery object ignored", "item", name, "category", result.Category)
		return
	}

	brand := cart.NormalizeBrand(result.Brand)

	// Cheap deterministic check first; only novel-looking items pay
	// for a reasoning call.
	if key, ok := p.store.FindSimilar(name, brand); ok {
		p.store.Bump(key, imagePath, now)
		p.metrics.CartMerges.Inc()
		p.metrics.DuplicatesSuppressed.WithLabelValues("deterministic").Inc()
		logger.Info("repeat sighting merged", "item", name, "key", key)
		return
	}

	verdict := p.reasoner.CheckDuplicate(ctx, reasoning.Candidate{
		Name: name, Brand: brand, Category: result.Category,
	}, p.store.Items(), now)
	if verdict.IsDuplicate {
		if key, ok := p.store.FindByName(verdict.SimilarItem); ok {
			p.store.Bump(key, imagePath, now)
			p.metrics.CartMerges.Inc()
			p.metrics.DuplicatesSuppressed.WithLabelValues("semantic").Inc()
			logger.Info("semantic duplicate merged", "item", name,
				"existing", verdict.SimilarItem, "reason", verdict.Reason)
			return
		}
		logger.Warn("duplicate verdict names unknown item, adding anyway",
			"item", name, "similar_item", verdict.SimilarItem)
	}

	added := p.store.Add(name, brand, result.Category, result.Confidence, imagePath, now)
	if !added.Added {
		return
	}
	p.metrics.CartAdds.Inc()
	logger.Info("item added to cart", "item", name, "brand", brand, "key", added.Key)

	p.scheduleEnrichment(added.Key, reasoning.Candidate{
		Name: name, Brand: brand, Category: result.Category,
	})
}

func (p *Processor) scheduleEnrichment(key string, candidate reasoning.Candidate) {
	action := &enrichAction{proc: p, key: key, candidate: candidate}
	if _, err := p.queue.Enqueue(action, jobqueue.DefaultRetryConfig(true)); err != nil {
		logger.Warn("enrichment not scheduled", "item", candidate.Name, "error", err)
	}
}

// flushResults reconciles the cart and persists the session document.
func (p *Processor) flushResults() {
	if merged := p.store.Reconcile(); merged > 0 {
		logger.Info("cart reconciled", "entries_merged", merged)
	}

	doc := p.BuildDocument()
	if err := p.writer.Write(doc); err != nil {
		logger.Error("persisting results failed", "error", err)
		return
	}
	p.metrics.ResultsFlushes.Inc()
}

// BuildDocument assembles the current session state.
func (p *Processor) BuildDocument() *results.Document {
	bagDetected, bagConfidence := p.store.BagDetection()

	p.mu.Lock()
	frames := p.frames
	dealRecords := make([]results.DealRecord, len(p.dealRecords))
	copy(dealRecords, p.dealRecords)
	dealCache := make(map[string]cart.DealAnalysis, len(p.dealCache))
	for k, v := range p.dealCache {
		dealCache[k] = v
	}
	p.mu.Unlock()

	return &results.Document{
		Timestamp:              p.now().Format(time.RFC3339),
		TotalFramesProcessed:   frames,
		BagDetected:            bagDetected,
		BagDetectionConfidence: bagConfidence,
		ShoppingCart:           p.store.Snapshot(),
		CartSummary:            p.store.Summarize(),
		AllClassifications:     p.dispatcher.Records(),
		ClassificationSummary:  p.dispatcher.Summarize(),
		DealAnalysisResults:    dealRecords,
		DealAnalysisCache:      dealCache,
		DealAnalysisSummary:    results.SummarizeDeals(dealRecords, len(dealCache)),
	}
}

// QueueStats exposes background job counters.
func (p *Processor) QueueStats() jobqueue.Stats {
	return p.queue.GetStats()
}
