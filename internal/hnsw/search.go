package hnsw

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
)

// OnDiskIndex traverses a finalized index through its two rel tables.
type OnDiskIndex struct {
	aux   AuxInfo
	dist  func(a, b []float64) float64
	read  VectorReader
	upper *storage.RelTable
	lower *storage.RelTable
}

// OpenIndex resolves an index entry against storage.
func OpenIndex(cat *catalog.Catalog, sm *storage.StorageManager,
	tableName, indexName string) (*OnDiskIndex, error) {
	tableID, ok := cat.GetTableID(tableName)
	if !ok {
		return nil, types.NewBinderError("Table %s does not exist.", tableName)
	}
	entry, ok := cat.GetIndex(tableID, indexName)
	if !ok {
		return nil, types.NewCatalogError("Index %s does not exist in table %s.", indexName, tableName)
	}
	aux, err := DecodeAuxInfo(entry.AuxInfo)
	if err != nil {
		return nil, err
	}
	nodeEntry, _ := cat.GetNodeTableEntry(tableID)
	var prop *catalog.Property
	for i := range nodeEntry.Properties {
		if nodeEntry.Properties[i].ID == entry.PropertyIDs[0] {
			prop = &nodeEntry.Properties[i]
		}
	}
	if prop == nil {
		return nil, types.NewRuntimeError("index %s references a dropped property", indexName)
	}
	nodeTable, ok := sm.GetNodeTable(tableID)
	if !ok {
		return nil, types.NewRuntimeError("storage for table %s was never created", tableName)
	}
	column := nodeTable.Column(prop.ColumnID)
	upper, ok := sm.GetRelTable(aux.UpperRelTableID)
	if !ok {
		return nil, types.NewRuntimeError("index %s lost its upper rel table", indexName)
	}
	lower, ok := sm.GetRelTable(aux.LowerRelTableID)
	if !ok {
		return nil, types.NewRuntimeError("index %s lost its lower rel table", indexName)
	}
	return &OnDiskIndex{
		aux:  aux,
		dist: aux.Config.distFn(),
		read: func(offset types.Offset) []float64 {
			v := column.Value(offset)
			if v.IsNull {
				return nil
			}
			out := make([]float64, len(v.ListVal))
			for i, e := range v.ListVal {
				out[i] = e.DoubleVal
			}
			return out
		},
		upper: upper,
		lower: lower,
	}, nil
}

func relNeighbors(t *storage.RelTable, offset types.Offset) []types.Offset {
	d := t.Fwd
	start, end := d.ListBounds(offset)
	out := make([]types.Offset, 0, end-start)
	for pos := start; pos < end; pos++ {
		v := d.CSRData[0].Value(types.Offset(pos))
		if !v.IsNull {
			out = append(out, types.Offset(v.Int64Val))
		}
	}
	return out
}

// SearchResult is one nearest neighbor with its distance.
type SearchResult struct {
	Offset   types.Offset
	Distance float64
}

// Search routes the query through the upper layer, beam-searches the lower
// layer with width efs, and returns the k closest offsets.
func (idx *OnDiskIndex) Search(query []float64, k int, efs int64) []SearchResult {
	if idx.aux.LowerEntryPoint == types.InvalidOffset || k <= 0 {
		return nil
	}
	if efs < int64(k) {
		efs = int64(k)
	}
	entry := idx.aux.LowerEntryPoint
	if idx.aux.UpperEntryPoint != types.InvalidOffset {
		cur := idx.aux.UpperEntryPoint
		curDist := idx.dist(query, idx.read(cur))
		for {
			improved := false
			for _, nbr := range relNeighbors(idx.upper, cur) {
				d := idx.dist(query, idx.read(nbr))
				if d < curDist {
					cur, curDist = nbr, d
					improved = true
				}
			}
			if !improved {
				break
			}
		}
		entry = cur
	}

	visited := roaring64.New()
	visited.Add(uint64(entry))
	candidates := []scored{{entry, idx.dist(query, idx.read(entry))}}
	best := append([]scored(nil), candidates...)
	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		cur := candidates[0]
		candidates = candidates[1:]
		if len(best) >= int(efs) && cur.dist > best[len(best)-1].dist {
			break
		}
		for _, nbr := range relNeighbors(idx.lower, cur.offset) {
			if visited.Contains(uint64(nbr)) {
				continue
			}
			visited.Add(uint64(nbr))
			d := idx.dist(query, idx.read(nbr))
			if len(best) < int(efs) || d < best[len(best)-1].dist {
				candidates = append(candidates, scored{nbr, d})
				best = append(best, scored{nbr, d})
				sort.Slice(best, func(i, j int) bool { return best[i].dist < best[j].dist })
				if len(best) > int(efs) {
					best = best[:efs]
				}
			}
		}
	}
	if len(best) > k {
		best = best[:k]
	}
	out := make([]SearchResult, len(best))
	for i, s := range best {
		out[i] = SearchResult{Offset: s.offset, Distance: s.dist}
	}
	return out
}
