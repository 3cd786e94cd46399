package captcha

import (
	"sync"
	"time"
)

// ewma is an exponentially weighted moving average that stays unset
// until its first sample, so a provider with zero observations doesn't
// silently score as if it had a latency of zero.
type ewma struct {
	alpha float64
	value *float64
}

func newEWMA(alpha float64, initial *float64) *ewma {
	return &ewma{alpha: alpha, value: initial}
}

func (e *ewma) update(x float64) float64 {
	if e.value == nil {
		v := x
		e.value = &v
	} else {
		v := e.alpha*x + (1-e.alpha)*(*e.value)
		e.value = &v
	}
	return *e.value
}

func (e *ewma) get() (float64, bool) {
	if e.value == nil {
		return 0, false
	}
	return *e.value, true
}

// providerStats tracks one provider's running outcome counts and
// latency estimates.
type providerStats struct {
	count      int
	success    int
	failure    int
	failStreak int
	latency    *ewma
	hLatency   *ewma
	lastUpdate time.Time
}

func newProviderStats(latencyAlpha, hAlpha float64) *providerStats {
	return &providerStats{latency: newEWMA(latencyAlpha, nil), hLatency: newEWMA(hAlpha, nil)}
}

func (s *providerStats) record(success bool, latency, hLatency *float64) {
	s.count++
	if success {
		s.success++
		s.failStreak = 0
	} else {
		s.failure++
		s.failStreak++
	}
	if latency != nil {
		s.latency.update(*latency)
	}
	if hLatency != nil {
		s.hLatency.update(*hLatency)
	}
	s.lastUpdate = time.Now()
}

// pHat is the Laplace-smoothed success probability estimate: it avoids
// the 0/1 extremes a raw ratio would give with few samples.
func (s *providerStats) pHat() float64 {
	return float64(s.success+1) / float64(s.count+2)
}

// ProviderSnapshot is the persisted/exported view of one provider's
// stats, matching the round-trip JSON shape used by Snapshot/LoadSnapshot.
type ProviderSnapshot struct {
	Count      int      `json:"count"`
	Success    int      `json:"success"`
	Failure    int      `json:"failure"`
	FailStreak int      `json:"fail_streak"`
	Latency    *float64 `json:"latency"`
	HLatency   *float64 `json:"h_latency"`
	PHat       float64  `json:"p_hat"`
	Score      *float64 `json:"score"`
}

// Snapshot is the full persisted adaptive-router state.
type Snapshot struct {
	Providers []string                     `json:"providers"`
	H         *float64                     `json:"h"`
	Stats     map[string]ProviderSnapshot  `json:"stats"`
}

// AdaptiveRouter scores CAPTCHA providers by a blend of their observed
// success rate and latency, reordering the provider chain toward
// whichever is currently performing best while keeping a cold-start
// fallback for providers that haven't accumulated enough samples yet.
type AdaptiveRouter struct {
	mu sync.Mutex

	enabled            bool
	minSamples         int
	epsilon            float64
	latencyAlpha       float64
	hAlpha             float64
	updateInterval     int
	failStreakDegrade  int
	scoreAlpha         float64
	scoreBeta          float64

	providers  []string
	stats      map[string]*providerStats
	baseOrder  []string
	h          *ewma
	frozen     bool
	lastUpdate *int
}

// AdaptiveRouterOption configures NewAdaptiveRouter.
type AdaptiveRouterOption func(*AdaptiveRouter)

// NewAdaptiveRouter builds a router over providers with the defaults
// matched to the originating system's tuning: min 10 samples before a
// provider is eligible to be reordered on its score, a 10% epsilon
// before displacing the current primary, latency/health EWMA alpha of
// 0.2, score = p_hat - 0.4*latency - 0.6*health_latency.
func NewAdaptiveRouter(providers []string, opts ...AdaptiveRouterOption) *AdaptiveRouter {
	r := &AdaptiveRouter{
		enabled:           true,
		minSamples:        10,
		epsilon:           0.1,
		latencyAlpha:      0.2,
		hAlpha:            0.2,
		updateInterval:    20,
		failStreakDegrade: 3,
		scoreAlpha:        0.4,
		scoreBeta:         0.6,
		providers:         append([]string(nil), providers...),
		baseOrder:         append([]string(nil), providers...),
		stats:             make(map[string]*providerStats),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.h = newEWMA(r.hAlpha, nil)
	for _, p := range r.providers {
		r.stats[p] = newProviderStats(r.latencyAlpha, r.hAlpha)
	}
	return r
}

// WithEnabled toggles the router on/off at construction.
func WithEnabled(enabled bool) AdaptiveRouterOption {
	return func(r *AdaptiveRouter) { r.enabled = enabled }
}

// WithMinSamples overrides the minimum sample count before a provider
// becomes eligible for score-based reordering.
func WithMinSamples(n int) AdaptiveRouterOption {
	return func(r *AdaptiveRouter) {
		if n > 0 {
			r.minSamples = n
		}
	}
}

// WithEpsilon overrides the relative-improvement threshold required to
// displace the current primary provider.
func WithEpsilon(e float64) AdaptiveRouterOption {
	return func(r *AdaptiveRouter) {
		if e >= 0 {
			r.epsilon = e
		}
	}
}

// Enabled reports whether the router is active.
func (r *AdaptiveRouter) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetFrozen pauses reordering, used while a burst of elections is in
// flight so the provider order doesn't shift mid-burst.
func (r *AdaptiveRouter) SetFrozen(frozen bool) {
	r.mu.Lock()
	r.frozen = frozen
	r.mu.Unlock()
}

// IsFrozen reports the current freeze state.
func (r *AdaptiveRouter) IsFrozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// RecordAttempt records the outcome of one recognition attempt against
// provider. latency is the OCR call duration in seconds; hLatency is
// the duration of the validate request ("h"); the draw request's time
// is not part of it. Both are optional.
func (r *AdaptiveRouter) RecordAttempt(provider string, success bool, latency, hLatency *float64) {
	if provider == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[provider]
	if !ok {
		st = newProviderStats(r.latencyAlpha, r.hAlpha)
		r.stats[provider] = st
		r.baseOrder = append(r.baseOrder, provider)
	}
	st.record(success, latency, hLatency)
	if hLatency != nil {
		r.h.update(*hLatency)
	}
}

type scoredProvider struct {
	name  string
	score float64
}

func (r *AdaptiveRouter) eligibleScoresLocked(order []string) []scoredProvider {
	var out []scoredProvider
	for _, p := range order {
		st, ok := r.stats[p]
		if !ok || st.count < r.minSamples {
			continue
		}
		pHat := st.pHat()
		t, hasLatency := st.latency.get()
		if !hasLatency {
			t = 0
		}
		hT, hasH := st.hLatency.get()
		if !hasH {
			if v, ok := r.h.get(); ok {
				hT = v
			} else {
				hT = 0
			}
		}
		score := pHat - r.scoreAlpha*t - r.scoreBeta*hT
		out = append(out, scoredProvider{name: p, score: score})
	}
	return out
}

func (r *AdaptiveRouter) coldStartActiveLocked(order []string) bool {
	for _, p := range order {
		if st, ok := r.stats[p]; ok && st.count >= r.minSamples {
			return false
		}
	}
	return true
}

// applyFailStreakDegradeLocked demotes the current head of order to
// the back of the line once its consecutive-failure streak reaches the
// configured threshold, used during cold start when scores aren't
// trustworthy yet but an obviously-broken provider still needs to be
// rotated away from.
func (r *AdaptiveRouter) applyFailStreakDegradeLocked(order []string) ([]string, bool) {
	if r.failStreakDegrade <= 0 || len(order) == 0 {
		return append([]string(nil), order...), false
	}
	head := order[0]
	st, ok := r.stats[head]
	if !ok || st.failStreak < r.failStreakDegrade {
		return append([]string(nil), order...), false
	}
	newOrder := append(append([]string(nil), order[1:]...), head)
	return newOrder, true
}

// MaybeReorder computes a possibly-updated provider order given the
// current order and a monotonically increasing loop counter (used to
// gate how often reordering is allowed to happen). Returns the new
// order, whether the primary provider changed, and whether the order
// changed at all.
func (r *AdaptiveRouter) MaybeReorder(currentOrder []string, loopCount int) (newOrder []string, switchedPrimary, changed bool) {
	if !r.Enabled() {
		return currentOrder, false, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return currentOrder, false, false
	}
	order := append([]string(nil), currentOrder...)

	if r.coldStartActiveLocked(order) {
		base := make([]string, 0, len(order))
		seen := make(map[string]bool)
		for _, p := range r.baseOrder {
			if containsString(order, p) && !seen[p] {
				base = append(base, p)
				seen[p] = true
			}
		}
		for _, p := range order {
			if !seen[p] {
				base = append(base, p)
				seen[p] = true
			}
		}
		degraded, switched := r.applyFailStreakDegradeLocked(base)
		changed := !stringsEqual(degraded, order)
		if changed {
			r.lastUpdate = intPtr(loopCount)
		}
		return degraded, switched, changed
	}

	if r.updateInterval > 0 && r.lastUpdate != nil && loopCount-*r.lastUpdate < r.updateInterval {
		return order, false, false
	}

	scores := r.eligibleScoresLocked(order)
	if len(scores) == 0 {
		return order, false, false
	}
	scoreOf := make(map[string]float64, len(scores))
	for _, s := range scores {
		scoreOf[s.name] = s.score
	}
	sorted := append([]scoredProvider(nil), scores...)
	sortScoredDesc(sorted)

	scoredNames := make([]string, len(sorted))
	for i, s := range sorted {
		scoredNames[i] = s.name
	}
	var rest []string
	for _, p := range order {
		if _, scored := scoreOf[p]; !scored {
			rest = append(rest, p)
		}
	}
	merged := append(scoredNames, rest...)

	var current string
	if len(order) > 0 {
		current = order[0]
	}
	best := sorted[0].name
	switched = false
	if curScore, ok := scoreOf[current]; ok {
		bestScore := scoreOf[best]
		if best != current && bestScore >= curScore*(1.0+r.epsilon) {
			switched = true
		}
	}
	if _, ok := scoreOf[current]; ok && !switched && merged[0] != current {
		// The best score does not beat the current primary by epsilon:
		// keep the primary at the head of the order.
		kept := []string{current}
		for _, p := range merged {
			if p != current {
				kept = append(kept, p)
			}
		}
		merged = kept
	}
	switched = merged[0] != current
	changed = !stringsEqual(merged, order)
	if changed {
		r.lastUpdate = intPtr(loopCount)
	}
	return merged, switched, changed
}

// SelectProbeProvider picks the least-sampled provider from order, so
// background probing spreads evenly instead of always hitting whatever
// is currently in front.
func (r *AdaptiveRouter) SelectProbeProvider(order []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(order) == 0 {
		return ""
	}
	minCount := -1
	var candidate string
	for _, p := range order {
		count := 0
		if st, ok := r.stats[p]; ok {
			count = st.count
		}
		if minCount == -1 || count < minCount {
			minCount = count
			candidate = p
		}
	}
	return candidate
}

// TakeSnapshot exports the full router state for persistence.
func (r *AdaptiveRouter) TakeSnapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make(map[string]ProviderSnapshot, len(r.stats))
	for p, st := range r.stats {
		hT, hasH := st.hLatency.get()
		if !hasH {
			if v, ok := r.h.get(); ok {
				hT = v
				hasH = true
			}
		}
		var score *float64
		if st.count >= r.minSamples {
			t, _ := st.latency.get()
			s := st.pHat() - r.scoreAlpha*t - r.scoreBeta*hT
			score = &s
		}
		var latency, hLatency *float64
		if v, ok := st.latency.get(); ok {
			latency = &v
		}
		if hasH {
			hLatency = &hT
		}
		data[p] = ProviderSnapshot{
			Count: st.count, Success: st.success, Failure: st.failure, FailStreak: st.failStreak,
			Latency: latency, HLatency: hLatency, PHat: st.pHat(), Score: score,
		}
	}
	var h *float64
	if v, ok := r.h.get(); ok {
		h = &v
	}
	return Snapshot{Providers: append([]string(nil), r.providers...), H: h, Stats: data}
}

// LoadSnapshot restores counters from a prior TakeSnapshot, for
// cold-start reduction across restarts. Unknown fields are ignored;
// negative or NaN values are dropped rather than applied. Always
// preserves the currently configured provider order rather than
// adopting whatever order was persisted.
func (r *AdaptiveRouter) LoadSnapshot(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.H != nil && *snap.H >= 0 && *snap.H == *snap.H {
		r.h = newEWMA(r.hAlpha, snap.H)
	}
	for _, p := range snap.Providers {
		if _, ok := r.stats[p]; !ok {
			r.stats[p] = newProviderStats(r.latencyAlpha, r.hAlpha)
			r.baseOrder = append(r.baseOrder, p)
		}
	}
	for p, data := range snap.Stats {
		st, ok := r.stats[p]
		if !ok {
			st = newProviderStats(r.latencyAlpha, r.hAlpha)
			r.stats[p] = st
			r.baseOrder = append(r.baseOrder, p)
		}
		st.count = nonNegative(data.Count)
		st.success = nonNegative(data.Success)
		st.failure = nonNegative(data.Failure)
		st.failStreak = nonNegative(data.FailStreak)
		st.latency = newEWMA(r.latencyAlpha, validFloat(data.Latency))
		st.hLatency = newEWMA(r.hAlpha, validFloat(data.HLatency))
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func validFloat(f *float64) *float64 {
	if f == nil || *f < 0 || *f != *f {
		return nil
	}
	return f
}

func intPtr(n int) *int { return &n }

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortScoredDesc(s []scoredProvider) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score > s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
