// Package hnsw builds and queries the two-layer HNSW vector index. The
// graph is persisted as two auxiliary relationship tables over the indexed
// node table; construction happens in memory with neighbor-lock sharding
// and per-worker visited bitsets, then finalizes into rel batch inserts.
package hnsw

import (
	"bytes"
	"math"
	"strings"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Config is the tunable parameter set of _CREATE_HNSW_INDEX.
type Config struct {
	// Mu and Ml are the max neighbor counts of the upper and lower layers.
	Mu int64
	Ml int64
	// Efc is the construction beam width.
	Efc int64
	// DistFunc is one of l2, cosine, ip.
	DistFunc string
	// Alpha is the diversity-pruning slack used by shrink.
	Alpha float64
	// Pu is the sampling probability of the upper layer.
	Pu float64
}

func DefaultConfig() Config {
	return Config{Mu: 30, Ml: 60, Efc: 200, DistFunc: "cosine", Alpha: 1.1, Pu: 0.05}
}

// ConfigFromParams overlays the optional {key: value} block of the call.
func ConfigFromParams(params map[string]types.Value) (Config, error) {
	cfg := DefaultConfig()
	for key, v := range params {
		switch strings.ToLower(key) {
		case "mu":
			cfg.Mu = v.Int64Val
		case "ml":
			cfg.Ml = v.Int64Val
		case "efc":
			cfg.Efc = v.Int64Val
		case "distfunc":
			cfg.DistFunc = strings.ToLower(v.StringVal)
		case "alpha":
			cfg.Alpha = v.DoubleVal
		case "pu":
			cfg.Pu = v.DoubleVal
		default:
			return cfg, types.NewBinderError("Unrecognized optional parameter %s in CREATE_HNSW_INDEX.", key)
		}
	}
	if cfg.Mu <= 0 || cfg.Ml <= 0 || cfg.Efc <= 0 {
		return cfg, types.NewBinderError("HNSW parameters mu, ml and efc must be positive.")
	}
	if cfg.Pu < 0 || cfg.Pu > 1 {
		return cfg, types.NewBinderError("HNSW parameter pu must be within [0, 1].")
	}
	switch cfg.DistFunc {
	case "l2", "cosine", "ip":
	default:
		return cfg, types.NewBinderError("Unsupported distance function %s in CREATE_HNSW_INDEX.", cfg.DistFunc)
	}
	return cfg, nil
}

// distFn resolves the configured distance. Lower is closer for every
// variant; inner product is negated to fit.
func (c Config) distFn() func(a, b []float64) float64 {
	switch c.DistFunc {
	case "l2":
		return func(a, b []float64) float64 {
			var sum float64
			for i := range a {
				d := a[i] - b[i]
				sum += d * d
			}
			return sum
		}
	case "ip":
		return func(a, b []float64) float64 {
			var dot float64
			for i := range a {
				dot += a[i] * b[i]
			}
			return -dot
		}
	default: // cosine
		return func(a, b []float64) float64 {
			var dot, na, nb float64
			for i := range a {
				dot += a[i] * b[i]
				na += a[i] * a[i]
				nb += b[i] * b[i]
			}
			denom := math.Sqrt(na) * math.Sqrt(nb)
			if denom == 0 {
				return 1
			}
			return 1 - dot/denom
		}
	}
}

// AuxInfo is the catalog payload of an HNSW index entry.
type AuxInfo struct {
	UpperRelTableID types.TableID
	LowerRelTableID types.TableID
	UpperEntryPoint types.Offset
	LowerEntryPoint types.Offset
	Config          Config
}

func (a AuxInfo) Encode() []byte {
	var buf bytes.Buffer
	s := catalog.NewSerializer(&buf)
	s.WriteU64(uint64(a.UpperRelTableID))
	s.WriteU64(uint64(a.LowerRelTableID))
	s.WriteU64(uint64(a.UpperEntryPoint))
	s.WriteU64(uint64(a.LowerEntryPoint))
	s.WriteI64(a.Config.Mu)
	s.WriteI64(a.Config.Ml)
	s.WriteI64(a.Config.Efc)
	s.WriteString(a.Config.DistFunc)
	s.WriteF64(a.Config.Alpha)
	s.WriteF64(a.Config.Pu)
	return buf.Bytes()
}

func DecodeAuxInfo(raw []byte) (AuxInfo, error) {
	d := catalog.NewDeserializer(bytes.NewReader(raw))
	a := AuxInfo{
		UpperRelTableID: types.TableID(d.ReadU64()),
		LowerRelTableID: types.TableID(d.ReadU64()),
		UpperEntryPoint: types.Offset(d.ReadU64()),
		LowerEntryPoint: types.Offset(d.ReadU64()),
	}
	a.Config.Mu = d.ReadI64()
	a.Config.Ml = d.ReadI64()
	a.Config.Efc = d.ReadI64()
	a.Config.DistFunc = d.ReadString()
	a.Config.Alpha = d.ReadF64()
	a.Config.Pu = d.ReadF64()
	if err := d.Err(); err != nil {
		return a, types.NewRuntimeError("corrupt HNSW index aux info: %s", err)
	}
	return a, nil
}

// UpperRelTableName and LowerRelTableName are the auxiliary table names of
// an index.
func UpperRelTableName(indexName string) string { return "upper_" + indexName }
func LowerRelTableName(indexName string) string { return "lower_" + indexName }
