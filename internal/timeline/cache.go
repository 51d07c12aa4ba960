package timeline

import (
	"container/list"
	"sync"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

// DefaultCacheCapacity matches spec.md §4.L's "small, fixed capacity
// (e.g., 16 entries)".
const DefaultCacheCapacity = 16

type cacheKey struct {
	corpusHash uint64
	span       time.Duration
	binSize    time.Duration
	now        time.Time
}

// Cache is the in-memory LRU Timeline artifact store from spec.md §4.L. It
// holds no persisted state; contents are lost on process restart, by
// design — the Timeline is rebuildable from the Corpus at any time.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recently used
	items    map[cacheKey]*list.Element
}

type cacheEntry struct {
	key      cacheKey
	artifact *Artifact
}

// NewCache returns an empty Cache with the given capacity (DefaultCacheCapacity if <= 0).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// GetExact returns an artifact with identical span, bin size, and "now",
// iff its corpus hash still matches corpusHash. A stale entry (hash
// mismatch) is evicted, not returned.
func (c *Cache) GetExact(corpusHash uint64, span, binSize time.Duration, now time.Time) (*Artifact, bool) {
	key := cacheKey{corpusHash: corpusHash, span: span, binSize: binSize, now: now}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if entry.artifact.CorpusHash != corpusHash {
		c.removeLocked(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.artifact, true
}

// Put inserts or refreshes an artifact, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Put(art *Artifact) {
	key := cacheKey{corpusHash: art.CorpusHash, span: art.Span, binSize: art.BinSize, now: art.Now}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).artifact = art
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, artifact: art})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.ll.Remove(el)
}

// GetFiltered implements spec.md §4.L's hierarchical derivation: given any
// cached artifact with the same corpus hash and "now" and a span at least
// as large as requested, derive the requested artifact by resampling bins
// instead of rebuilding from the Corpus. Per-project totals over the
// requested span always come out exact; when the cached bin size is
// coarser than requested (e.g. a cached 30d/1-day-bin artifact serving a
// 7d/6-hour request, spec.md §8 scenario 5) there is no way to recover
// true sub-day resolution, so each coarse bin's count is split evenly
// across the finer bins it covers — correct on aggregate, approximate on
// distribution within the original coarse bin. Returns ok=false on a
// cache miss — the caller should Build fresh and Put the result.
func (c *Cache) GetFiltered(corpusHash uint64, requestedSpan, requestedBinSize time.Duration, now time.Time) (*Artifact, bool) {
	if requestedSpan%requestedBinSize != 0 {
		return nil, false
	}

	c.mu.Lock()
	var best *Artifact
	for _, el := range c.items {
		entry := el.Value.(*cacheEntry)
		art := entry.artifact
		if art.CorpusHash != corpusHash || !art.Now.Equal(now) {
			continue
		}
		if art.Span < requestedSpan {
			continue
		}
		if !binSizesCompatible(art.BinSize, requestedBinSize) {
			continue
		}
		if best == nil || art.Span < best.Span {
			best = art
		}
	}
	c.mu.Unlock()

	if best == nil {
		return nil, false
	}
	derived := deriveArtifact(best, requestedSpan, requestedBinSize)
	if derived == nil {
		return nil, false
	}
	c.Put(derived)
	return derived, true
}

// binSizesCompatible reports whether one bin size evenly divides the other,
// in either direction — the only shapes resampleBins can handle.
func binSizesCompatible(a, b time.Duration) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	if a >= b {
		return a%b == 0
	}
	return b%a == 0
}

// deriveArtifact resamples source's bins to requestedSpan/requestedBinSize
// and slices to the most recent requestedSpan, per spec.md §4.L and §8
// scenario 5. Returns nil if the source doesn't actually cover the
// request (guarded already by GetFiltered, but kept defensive since this
// is also reachable from tests).
func deriveArtifact(source *Artifact, requestedSpan, requestedBinSize time.Duration) *Artifact {
	requestedNumBins := int(requestedSpan / requestedBinSize)

	derived := &Artifact{
		CorpusHash:  source.CorpusHash,
		Now:         source.Now,
		Span:        requestedSpan,
		BinSize:     requestedBinSize,
		NumBins:     requestedNumBins,
		ProjectBins: make(map[string][]int, len(source.ProjectBins)),
		ToolBins:    make(map[string][]int, len(source.ToolBins)),
		ToolCounts:  make(map[string]int, len(source.ToolCounts)),
		Detailed:    false, // per-project tool breakdown isn't preserved through derivation
	}

	ok := true
	for project, bins := range source.ProjectBins {
		resampled := resampleBins(bins, source.BinSize, requestedBinSize, requestedNumBins)
		if resampled == nil {
			ok = false
			break
		}
		derived.ProjectBins[project] = resampled
	}
	if !ok {
		return nil
	}
	for tool, bins := range source.ToolBins {
		resampled := resampleBins(bins, source.BinSize, requestedBinSize, requestedNumBins)
		if resampled == nil {
			continue
		}
		derived.ToolBins[tool] = resampled
		total := 0
		for _, v := range resampled {
			total += v
		}
		if total > 0 {
			derived.ToolCounts[tool] = total
		}
	}

	derived.ProjectRanking = rankProjects(derived.ProjectBins)
	derived.Trend = computeTrend(derived.ProjectBins)
	derived.TopTools = topTools(derived.ToolCounts, topToolsLimit)
	return derived
}

// resampleBins converts source (bucketed at sourceBinSize, most recent bin
// last) into requestedNumBins buckets of requestedBinSize, covering the
// same end instant. When requestedBinSize is coarser, adjacent source bins
// are summed; when finer, each source bin's count is split evenly across
// the finer bins it covers.
func resampleBins(source []int, sourceBinSize, requestedBinSize time.Duration, requestedNumBins int) []int {
	switch {
	case requestedBinSize >= sourceBinSize:
		ratio := int(requestedBinSize / sourceBinSize)
		needed := requestedNumBins * ratio
		if needed > len(source) {
			return nil
		}
		start := len(source) - needed
		out := make([]int, requestedNumBins)
		for j := 0; j < requestedNumBins; j++ {
			sum := 0
			base := start + j*ratio
			for k := 0; k < ratio; k++ {
				sum += source[base+k]
			}
			out[j] = sum
		}
		return out
	default:
		invRatio := int(sourceBinSize / requestedBinSize)
		if requestedNumBins%invRatio != 0 {
			return nil
		}
		coarseBinsNeeded := requestedNumBins / invRatio
		if coarseBinsNeeded > len(source) {
			return nil
		}
		start := len(source) - coarseBinsNeeded
		out := make([]int, requestedNumBins)
		for j := 0; j < coarseBinsNeeded; j++ {
			count := source[start+j]
			share := count / invRatio
			remainder := count % invRatio
			for k := 0; k < invRatio; k++ {
				v := share
				if k == 0 {
					v += remainder
				}
				out[j*invRatio+k] = v
			}
		}
		return out
	}
}

// BuildCached returns GetExact's hit, else tries GetFiltered's derivation,
// else builds fresh from c and caches the result — the composed operation
// the Timeline Engine actually calls.
func BuildCached(cache *Cache, corp *corpus.Corpus, period Period, now time.Time, detailed bool) (*Artifact, error) {
	span, bin, err := period.SpanAndBin()
	if err != nil {
		return nil, err
	}

	if art, ok := cache.GetExact(corp.Hash, span, bin, now); ok {
		return art, nil
	}
	if art, ok := cache.GetFiltered(corp.Hash, span, bin, now); ok {
		return art, nil
	}

	art, err := Build(corp, period, now, detailed)
	if err != nil {
		return nil, err
	}
	cache.Put(art)
	return art, nil
}
