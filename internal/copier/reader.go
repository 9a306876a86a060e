// Package copier implements bulk ingest: node copies with a parallel
// primary-key index build, and two-phase relationship copies producing the
// CSR-style directed layouts. Cooperation between populate tasks is only
// through atomics and the primary-key index's internal locking.
package copier

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/untoldecay/kuzugo/internal/binder"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

// BlockSize is the morsel width of the file reader: populate tasks are
// scheduled one per block.
const BlockSize = 2048

// Row is one parsed input row with its provenance for error messages.
type Row struct {
	Fields []string
	File   string
	Line   uint64
}

// Block is a morsel of the file reader. Empty blocks are permitted.
type Block struct {
	Rows []Row
	// StartRowIdx is the global row index of Rows[0] across all files.
	StartRowIdx uint64
}

// readBlocks loads every input file into row blocks. The line count per
// block is fixed up front so tasks can compute global row offsets without
// coordination.
func readBlocks(source *parser.ScanSource, opts binder.CopyOptions) ([]Block, error) {
	if source.Type != parser.SourceCSV {
		return nil, types.NewNotImplementedError(
			fmt.Sprintf("copy from %v source", source.Type))
	}
	var blocks []Block
	var current Block
	var globalRow uint64
	flush := func() {
		if len(current.Rows) > 0 {
			blocks = append(blocks, current)
			current = Block{StartRowIdx: globalRow}
		}
	}
	for _, path := range source.FilePaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, types.NewCopyError("Cannot open file %s: %s.", path, err)
		}
		r := csv.NewReader(f)
		r.Comma = opts.Delim
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		line := uint64(0)
		first := true
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return nil, types.NewCopyError("Error reading %s: %s.", path, err)
			}
			line++
			if first && opts.Header {
				first = false
				continue
			}
			first = false
			current.Rows = append(current.Rows, Row{Fields: record, File: path, Line: line})
			globalRow++
			if len(current.Rows) >= BlockSize {
				flush()
			}
		}
		f.Close()
	}
	flush()
	return blocks, nil
}

// CSVSchemaSniffer is the binder's source-schema callback for CSV files:
// column names come from the header when present, otherwise from the
// binder's expectation; CSV carries no type information, so the scan
// parses fields directly into the expected types.
func CSVSchemaSniffer() binder.SchemaSniffer {
	return func(source *parser.ScanSource, opts binder.CopyOptions,
		expectedNames []string, expectedTypes []*types.LogicalType) ([]binder.ScanColumn, error) {
		if source.Type != parser.SourceCSV || !opts.Header || len(source.FilePaths) == 0 {
			out := make([]binder.ScanColumn, len(expectedNames))
			for i := range expectedNames {
				out[i] = binder.ScanColumn{Name: expectedNames[i], Type: expectedTypes[i]}
			}
			return out, nil
		}
		f, err := os.Open(source.FilePaths[0])
		if err != nil {
			return nil, types.NewCopyError("Cannot open file %s: %s.", source.FilePaths[0], err)
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.Comma = opts.Delim
		r.FieldsPerRecord = -1
		header, err := r.Read()
		if err != nil {
			return nil, types.NewCopyError("Error reading %s: %s.", source.FilePaths[0], err)
		}
		out := make([]binder.ScanColumn, len(header))
		for i, name := range header {
			t := types.NewType(types.TypeString)
			if i < len(expectedTypes) {
				t = expectedTypes[i]
			}
			out[i] = binder.ScanColumn{Name: strings.TrimSpace(name), Type: t}
		}
		return out, nil
	}
}

// parseField converts one CSV field into a value of the wanted type. An
// empty field is NULL.
func parseField(field string, t *types.LogicalType, row Row) (types.Value, error) {
	if field == "" {
		return types.NewNullValue(t), nil
	}
	if t.ID == types.TypeString {
		return types.NewStringValue(field), nil
	}
	v, ok := types.NewStringValue(field).CastTo(t)
	if !ok {
		return types.Value{}, types.NewCopyError(
			"Error while parsing value %s as %s around L%d in file %s.",
			field, t, row.Line, row.File)
	}
	return v, nil
}
