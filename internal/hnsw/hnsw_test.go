package hnsw

import (
	"math"
	"testing"

	"github.com/untoldecay/kuzugo/internal/types"
)

func vecReader(vectors [][]float64) VectorReader {
	return func(offset types.Offset) []float64 {
		if int(offset) >= len(vectors) {
			return nil
		}
		return vectors[offset]
	}
}

// Points on a line: nearest-neighbor structure is easy to verify.
func lineVectors(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(i), 0}
	}
	return out
}

func TestConfigFromParams(t *testing.T) {
	cfg, err := ConfigFromParams(map[string]types.Value{
		"mu":       types.NewInt64Value(16),
		"distfunc": types.NewStringValue("l2"),
	})
	if err != nil {
		t.Fatalf("ConfigFromParams failed: %v", err)
	}
	if cfg.Mu != 16 || cfg.DistFunc != "l2" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Ml != DefaultConfig().Ml {
		t.Error("unset parameters should keep defaults")
	}
	if _, err := ConfigFromParams(map[string]types.Value{
		"distfunc": types.NewStringValue("hamming"),
	}); err == nil {
		t.Error("unknown distance function should fail")
	}
	if _, err := ConfigFromParams(map[string]types.Value{
		"bogus": types.NewInt64Value(1),
	}); err == nil {
		t.Error("unknown parameter should fail")
	}
}

func TestAuxInfoRoundTrip(t *testing.T) {
	aux := AuxInfo{
		UpperRelTableID: 7,
		LowerRelTableID: 8,
		UpperEntryPoint: 3,
		LowerEntryPoint: 5,
		Config:          DefaultConfig(),
	}
	decoded, err := DecodeAuxInfo(aux.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != aux {
		t.Errorf("round trip = %+v, want %+v", decoded, aux)
	}
	if _, err := DecodeAuxInfo([]byte{1, 2}); err == nil {
		t.Error("truncated aux info should fail")
	}
}

func TestInMemIndexFindsNearNeighbors(t *testing.T) {
	vectors := lineVectors(200)
	cfg := DefaultConfig()
	cfg.DistFunc = "l2"
	cfg.Efc = 64
	idx := NewInMemIndex(cfg, uint64(len(vectors)), vecReader(vectors))

	visited := NewVisitedSet()
	for i := range vectors {
		idx.Insert(types.Offset(i), visited)
	}
	idx.Shrink()

	if idx.LowerEntryPoint() == types.InvalidOffset {
		t.Fatal("lower entry point never set")
	}
	// After shrink, every lower list obeys the budget and the graph is
	// connected enough that a greedy search from the entry reaches the
	// neighborhood of any query.
	query := []float64{57.2, 0}
	best := idx.searchLayer(idx.lower, idx.LowerEntryPoint(), query, 32, visited.Lower)
	if len(best) == 0 {
		t.Fatal("search returned nothing")
	}
	if math.Abs(float64(best[0].offset)-57) > 1 {
		t.Errorf("nearest = %d, want ~57", best[0].offset)
	}
	for offset, nbrs := range idx.lower.neighbors {
		if int64(len(nbrs)) > cfg.Ml {
			t.Fatalf("offset %d has %d neighbors after shrink, budget %d",
				offset, len(nbrs), cfg.Ml)
		}
	}
}

func TestShrinkDeduplicatesAndBounds(t *testing.T) {
	vectors := lineVectors(10)
	cfg := DefaultConfig()
	cfg.DistFunc = "l2"
	cfg.Ml = 3
	idx := NewInMemIndex(cfg, 10, vecReader(vectors))
	// Hand-build an oversized, duplicated neighbor list.
	idx.lower.neighbors[0] = []types.Offset{1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0}
	idx.lower.neighbors[0] = idx.shrinkList(0, idx.lower.neighbors[0], cfg.Ml)
	nbrs := idx.lower.neighbors[0]
	if int64(len(nbrs)) > cfg.Ml {
		t.Fatalf("shrunk list = %v, budget %d", nbrs, cfg.Ml)
	}
	seen := map[types.Offset]bool{}
	for _, n := range nbrs {
		if n == 0 {
			t.Error("self edge survived shrink")
		}
		if seen[n] {
			t.Error("duplicate survived shrink")
		}
		seen[n] = true
	}
}

func TestRewriteStatements(t *testing.T) {
	stmts := RewriteCreate("idx", "T", "vec", nil)
	if len(stmts) != 3 {
		t.Fatalf("rewrite = %d statements, want 3", len(stmts))
	}
	drops := RewriteDrop("idx", "T")
	if len(drops) != 3 {
		t.Fatalf("drop rewrite = %d statements, want 3", len(drops))
	}
	if UpperRelTableName("idx") != "upper_idx" || LowerRelTableName("idx") != "lower_idx" {
		t.Error("auxiliary table names mismatch")
	}
}

func TestDistanceFunctions(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	l2 := Config{DistFunc: "l2"}.distFn()
	if got := l2(a, b); got != 2 {
		t.Errorf("l2 = %f, want 2", got)
	}
	cos := Config{DistFunc: "cosine"}.distFn()
	if got := cos(a, b); math.Abs(got-1) > 1e-9 {
		t.Errorf("cosine distance of orthogonal vectors = %f, want 1", got)
	}
	ip := Config{DistFunc: "ip"}.distFn()
	if got := ip(a, a); got != -1 {
		t.Errorf("ip = %f, want -1", got)
	}
}
