package cart

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store owns every cart item. All reads and mutations go through its
// methods under a single mutex; other components, the enrichment jobs
// included, never hold item pointers of their own.
type Store struct {
	mu                  sync.Mutex
	items               map[string]*Item
	lastUpdate          map[string]time.Time
	updateCooldown      time.Duration
	similarityThreshold float64
	bagDetected         bool
	bagConfidence       float64
	onMutate            func()
	log                 *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithUpdateCooldown throttles repeated increments of the same key
// within the window. The default of zero disables the throttle; the
// duplicate filter is the real gate against rapid re-adds.
func WithUpdateCooldown(d time.Duration) Option {
	return func(s *Store) { s.updateCooldown = d }
}

// WithSimilarityThreshold overrides the name/brand similarity cutoff
// used by duplicate detection and the reconciliation pass.
func WithSimilarityThreshold(threshold float64) Option {
	return func(s *Store) { s.similarityThreshold = threshold }
}

// WithOnMutate installs a callback invoked after every successful cart
// mutation, while the store lock is not held. The persistence flusher
// hooks in here.
func WithOnMutate(fn func()) Option {
	return func(s *Store) { s.onMutate = fn }
}

// WithLogger sets the logger used for cart events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty cart store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		items:               make(map[string]*Item),
		lastUpdate:          make(map[string]time.Time),
		similarityThreshold: 0.8,
		log:                 slog.Default().With("service", "cart"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddResult describes the outcome of an Add call.
type AddResult struct {
	Key      string // cart key of the affected item
	Added    bool   // true when a new item was inserted
	Mutated  bool   // true when the cart changed at all
	NewCount int    // item count after the mutation
}

// Add applies a confirmed, non-duplicate classification to the cart.
// An existing key is incremented, LastSeen advances, and a fresh image
// path replaces the stored one. A new key is inserted with count one.
func (s *Store) Add(name, normalizedBrand, category string, confidence float64, imagePath string, now time.Time) AddResult {
	key := Key(name, normalizedBrand)

	s.mu.Lock()
	if s.updateCooldown > 0 {
		if last, ok := s.lastUpdate[key]; ok && now.Sub(last) < s.updateCooldown {
			s.mu.Unlock()
			return AddResult{Key: key}
		}
	}

	var result AddResult
	if item, exists := s.items[key]; exists {
		item.Count++
		if now.After(item.LastSeen) {
			item.LastSeen = now
		}
		if imagePath != "" {
			item.ImagePath = imagePath
		}
		result = AddResult{Key: key, Mutated: true, NewCount: item.Count}
	} else {
		s.items[key] = &Item{
			Name:       name,
			Brand:      normalizedBrand,
			Category:   category,
			Count:      1,
			Confidence: confidence,
			LastSeen:   now,
			ImagePath:  imagePath,
		}
		result = AddResult{Key: key, Added: true, Mutated: true, NewCount: 1}
	}
	s.lastUpdate[key] = now
	s.mu.Unlock()

	if result.Added {
		s.log.Info("added to cart", "item", name, "brand", normalizedBrand)
	} else if result.Mutated {
		s.log.Info("updated cart", "item", name, "count", result.NewCount)
	}
	s.notifyMutation(result.Mutated)
	return result
}

// ApplyDealAnalysis patches the deal fields of the item with the given
// key. It is the only write path available to the enrichment jobs; the
// item may have been merged away since the job was scheduled, in which
// case the patch is dropped.
func (s *Store) ApplyDealAnalysis(key string, analysis *DealAnalysis, price *float64) bool {
	if analysis == nil {
		return false
	}

	s.mu.Lock()
	item, exists := s.items[key]
	if !exists {
		s.mu.Unlock()
		s.log.Warn("deal analysis target no longer in cart", "key", key)
		return false
	}
	item.DealAnalysis = analysis
	if price != nil {
		item.Price = price
	} else if extracted := ExtractBestDealPrice(analysis.BestDealMessage); extracted != nil {
		item.Price = extracted
	}
	s.mu.Unlock()

	s.notifyMutation(true)
	return true
}

// Bump merges a repeat sighting into the existing item with the given
// key: count increments, LastSeen advances, a fresh image path replaces
// the stored one. Returns a zero result when the key is gone.
func (s *Store) Bump(key, imagePath string, now time.Time) AddResult {
	s.mu.Lock()
	item, exists := s.items[key]
	if !exists {
		s.mu.Unlock()
		return AddResult{Key: key}
	}
	item.Count++
	if now.After(item.LastSeen) {
		item.LastSeen = now
	}
	if imagePath != "" {
		item.ImagePath = imagePath
	}
	result := AddResult{Key: key, Mutated: true, NewCount: item.Count}
	s.lastUpdate[key] = now
	s.mu.Unlock()

	s.log.Info("merged repeat sighting", "item", item.Name, "count", result.NewCount)
	s.notifyMutation(true)
	return result
}

// FindSimilar returns the key of an existing item that matches the
// candidate by the deterministic similarity heuristic: both name and
// brand similarity above the threshold.
func (s *Store) FindSimilar(name, normalizedBrand string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bestKey := ""
	bestScore := 0.0
	for key, item := range s.items {
		nameSim := NameSimilarity(name, item.Name)
		brandSim := NameSimilarity(normalizedBrand, item.Brand)
		if nameSim > s.similarityThreshold && brandSim > s.similarityThreshold {
			if score := nameSim + brandSim; score > bestScore {
				bestScore = score
				bestKey = key
			}
		}
	}
	return bestKey, bestKey != ""
}

// FindByName resolves a bare item name, as reported by the reasoning
// service, to the cart key it most plausibly refers to. The best match
// must clear the similarity threshold, so a name not actually in the
// cart never resolves to a weakly related entry. Returns false on an
// empty cart or when no entry clears the bar.
func (s *Store) FindByName(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bestKey := ""
	bestScore := 0.0
	for key, item := range s.items {
		score := NameSimilarity(name, item.Name)
		if strings.EqualFold(name, item.Name) {
			score = 1.0
		}
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	if bestScore <= s.similarityThreshold {
		return "", false
	}
	return bestKey, true
}

// SetBagDetected records that a bag or container was seen, keeping the
// highest-confidence sighting.
func (s *Store) SetBagDetected(confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bagDetected = true
	if confidence > s.bagConfidence {
		s.bagConfidence = confidence
	}
}

// BagDetection returns whether a bag was seen and with what confidence.
func (s *Store) BagDetection() (detected bool, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bagDetected, s.bagConfidence
}

// Snapshot returns a deep copy of the cart contents keyed by cart key.
func (s *Store) Snapshot() map[string]Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]Item, len(s.items))
	for key, item := range s.items {
		snapshot[key] = *item
	}
	return snapshot
}

// Items returns a copy of the cart contents ordered by cart key.
func (s *Store) Items() []Item {
	snapshot := s.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		items = append(items, snapshot[key])
	}
	return items
}

// Len returns the number of distinct items in the cart.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Summarize builds the aggregate cart summary.
func (s *Store) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSummary(s.items)
}

func (s *Store) notifyMutation(mutated bool) {
	if mutated && s.onMutate != nil {
		s.onMutate()
	}
}

var priceRe = regexp.MustCompile(`\$([0-9]+(?:\.[0-9]{1,2})?)`)

// ExtractBestDealPrice pulls the first $-prefixed price out of a free
// text deal message. Absence of a price yields nil, not an error.
func ExtractBestDealPrice(message string) *float64 {
	match := priceRe.FindStringSubmatch(message)
	if match == nil {
		return nil
	}
	price, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &price
}
