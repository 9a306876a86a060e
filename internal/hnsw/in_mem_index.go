package hnsw

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/untoldecay/kuzugo/internal/types"
)

const numNeighborShards = 64

// layer is one proximity-graph level. Neighbor lists are sharded by
// bound-node offset so concurrent inserts into disjoint neighborhoods
// proceed in parallel.
type layer struct {
	neighbors [][]types.Offset
	shards    [numNeighborShards]sync.Mutex
	maxDegree int64
}

func newLayer(numNodes uint64, maxDegree int64) *layer {
	return &layer{
		neighbors: make([][]types.Offset, numNodes),
		maxDegree: maxDegree,
	}
}

func (l *layer) lock(offset types.Offset) *sync.Mutex {
	return &l.shards[uint64(offset)%numNeighborShards]
}

func (l *layer) neighborsOf(offset types.Offset) []types.Offset {
	mu := l.lock(offset)
	mu.Lock()
	out := append([]types.Offset(nil), l.neighbors[offset]...)
	mu.Unlock()
	return out
}

func (l *layer) addEdge(from, to types.Offset) {
	mu := l.lock(from)
	mu.Lock()
	l.neighbors[from] = append(l.neighbors[from], to)
	mu.Unlock()
}

// VectorReader resolves a node offset to its embedding; the index build
// reads through it so the in-memory structure never owns the vectors.
type VectorReader func(offset types.Offset) []float64

// VisitedSet is the per-worker scratch bitset used by layer searches.
type VisitedSet struct {
	Upper *roaring64.Bitmap
	Lower *roaring64.Bitmap
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{Upper: roaring64.New(), Lower: roaring64.New()}
}

// InMemIndex is the construction-time two-layer HNSW structure.
type InMemIndex struct {
	cfg      Config
	dist     func(a, b []float64) float64
	read     VectorReader
	numNodes uint64

	upper *layer
	lower *layer

	mu              sync.Mutex
	upperEntryPoint types.Offset
	lowerEntryPoint types.Offset
	upperMembers    []types.Offset
}

func NewInMemIndex(cfg Config, numNodes uint64, read VectorReader) *InMemIndex {
	return &InMemIndex{
		cfg:      cfg,
		dist:     cfg.distFn(),
		read:     read,
		numNodes: numNodes,
		// Degrees run over the shrink targets during construction and are
		// trimmed once at the end.
		upper:           newLayer(numNodes, cfg.Mu),
		lower:           newLayer(numNodes, cfg.Ml),
		upperEntryPoint: types.InvalidOffset,
		lowerEntryPoint: types.InvalidOffset,
	}
}

func (idx *InMemIndex) UpperEntryPoint() types.Offset { return idx.upperEntryPoint }
func (idx *InMemIndex) LowerEntryPoint() types.Offset { return idx.lowerEntryPoint }
func (idx *InMemIndex) NumNodes() uint64              { return idx.numNodes }

// inUpperLayer samples offsets into the upper layer deterministically: a
// cheap multiplicative hash against Pu keeps sampling stable across runs.
func (idx *InMemIndex) inUpperLayer(offset types.Offset) bool {
	h := uint64(offset)*0x9E3779B97F4A7C15 + 1
	return float64(h%1_000_000)/1_000_000 < idx.cfg.Pu
}

type scored struct {
	offset types.Offset
	dist   float64
}

// searchLayer is a beam search of width ef from the entry point, using the
// caller's visited bitset as scratch.
func (idx *InMemIndex) searchLayer(l *layer, entry types.Offset, query []float64, ef int64,
	visited *roaring64.Bitmap) []scored {
	visited.Clear()
	visited.Add(uint64(entry))
	candidates := []scored{{entry, idx.dist(query, idx.read(entry))}}
	best := append([]scored(nil), candidates...)
	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		cur := candidates[0]
		candidates = candidates[1:]
		if len(best) >= int(ef) && cur.dist > best[len(best)-1].dist {
			break
		}
		for _, nbr := range l.neighborsOf(cur.offset) {
			if visited.Contains(uint64(nbr)) {
				continue
			}
			visited.Add(uint64(nbr))
			d := idx.dist(query, idx.read(nbr))
			if len(best) < int(ef) || d < best[len(best)-1].dist {
				candidates = append(candidates, scored{nbr, d})
				best = append(best, scored{nbr, d})
				sort.Slice(best, func(i, j int) bool { return best[i].dist < best[j].dist })
				if len(best) > int(ef) {
					best = best[:ef]
				}
			}
		}
	}
	return best
}

// Insert adds one node to the structure. visited is thread-local scratch;
// shared state is touched only under neighbor-shard locks.
func (idx *InMemIndex) Insert(offset types.Offset, visited *VisitedSet) {
	vec := idx.read(offset)
	if vec == nil {
		return
	}
	idx.mu.Lock()
	if idx.lowerEntryPoint == types.InvalidOffset {
		idx.lowerEntryPoint = offset
		if idx.inUpperLayer(offset) || idx.upperEntryPoint == types.InvalidOffset {
			idx.upperEntryPoint = offset
			idx.upperMembers = append(idx.upperMembers, offset)
		}
		idx.mu.Unlock()
		return
	}
	upperEntry := idx.upperEntryPoint
	idx.mu.Unlock()

	// Route through the upper layer to a good lower entry.
	lowerEntry := idx.lowerEntryPoint
	if upperEntry != types.InvalidOffset {
		upperBest := idx.searchLayer(idx.upper, upperEntry, vec, idx.cfg.Efc, visited.Upper)
		if len(upperBest) > 0 {
			lowerEntry = upperBest[0].offset
		}
		if idx.inUpperLayer(offset) {
			for _, s := range upperBest {
				if s.offset == offset {
					continue
				}
				idx.upper.addEdge(offset, s.offset)
				idx.upper.addEdge(s.offset, offset)
			}
			idx.mu.Lock()
			idx.upperMembers = append(idx.upperMembers, offset)
			idx.mu.Unlock()
		}
	}
	lowerBest := idx.searchLayer(idx.lower, lowerEntry, vec, idx.cfg.Efc, visited.Lower)
	limit := idx.cfg.Ml
	for i, s := range lowerBest {
		if int64(i) >= limit || s.offset == offset {
			continue
		}
		idx.lower.addEdge(offset, s.offset)
		idx.lower.addEdge(s.offset, offset)
	}
}

// shrinkList applies diversity pruning: a candidate is kept only if it is
// not alpha-dominated by an already kept neighbor.
func (idx *InMemIndex) shrinkList(owner types.Offset, nbrs []types.Offset, maxDegree int64) []types.Offset {
	ownerVec := idx.read(owner)
	seen := make(map[types.Offset]struct{}, len(nbrs))
	cands := make([]scored, 0, len(nbrs))
	for _, n := range nbrs {
		if n == owner {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		cands = append(cands, scored{n, idx.dist(ownerVec, idx.read(n))})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	var kept []types.Offset
	for _, c := range cands {
		if int64(len(kept)) >= maxDegree {
			break
		}
		dominated := false
		for _, k := range kept {
			if idx.dist(idx.read(k), idx.read(c.offset))*idx.cfg.Alpha < c.dist {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, c.offset)
		}
	}
	return kept
}

// Shrink trims every neighbor list to its layer budget. All Insert calls
// must have completed; Shrink runs single-threaded.
func (idx *InMemIndex) Shrink() {
	for _, offset := range idx.upperMembers {
		idx.upper.neighbors[offset] = idx.shrinkList(offset, idx.upper.neighbors[offset], idx.cfg.Mu)
	}
	for offset := range idx.lower.neighbors {
		if idx.lower.neighbors[offset] == nil {
			continue
		}
		idx.lower.neighbors[offset] = idx.shrinkList(types.Offset(offset),
			idx.lower.neighbors[offset], idx.cfg.Ml)
	}
}

// Edges streams one layer's adjacency to the finalizer that feeds the rel
// batch inserts.
func (idx *InMemIndex) Edges(upper bool, fn func(src, dst types.Offset)) {
	l := idx.lower
	if upper {
		l = idx.upper
	}
	for src, nbrs := range l.neighbors {
		for _, dst := range nbrs {
			fn(types.Offset(src), dst)
		}
	}
}
