package storage

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

func TestPKIndexInsertLookup(t *testing.T) {
	idx := NewPrimaryKeyIndex(types.TypeInt64, 0)
	for i := int64(0); i < 1000; i++ {
		if !idx.InsertInt(i*3, types.Offset(i)) {
			t.Fatalf("insert %d reported duplicate", i*3)
		}
	}
	for i := int64(0); i < 1000; i++ {
		offset, ok := idx.LookupInt(i * 3)
		if !ok || offset != types.Offset(i) {
			t.Fatalf("lookup %d = (%d,%v)", i*3, offset, ok)
		}
	}
	if _, ok := idx.LookupInt(1); ok {
		t.Error("lookup of absent key succeeded")
	}
	if idx.InsertInt(0, 999) {
		t.Error("duplicate insert succeeded")
	}
}

func TestPKIndexStringKeys(t *testing.T) {
	idx := NewPrimaryKeyIndex(types.TypeString, 16)
	if !idx.InsertStr("alice", 0) || !idx.InsertStr("bob", 1) {
		t.Fatal("insert failed")
	}
	if idx.InsertStr("alice", 2) {
		t.Error("duplicate string insert succeeded")
	}
	offset, ok := idx.LookupStr("bob")
	if !ok || offset != 1 {
		t.Errorf("bob = (%d,%v), want (1,true)", offset, ok)
	}
}

func TestPKIndexInsertBatchReportsFirstDuplicate(t *testing.T) {
	idx := NewPrimaryKeyIndex(types.TypeInt64, 0)
	keys := []types.Value{
		types.NewInt64Value(1), types.NewInt64Value(2), types.NewInt64Value(1),
	}
	dup := idx.InsertBatch(keys, 0)
	if dup != 2 {
		t.Errorf("duplicate index = %d, want 2", dup)
	}
}

func TestPKIndexConcurrentBatches(t *testing.T) {
	idx := NewPrimaryKeyIndex(types.TypeInt64, 4096)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			keys := make([]types.Value, 512)
			for i := range keys {
				keys[i] = types.NewInt64Value(int64(w*512 + i))
			}
			if dup := idx.InsertBatch(keys, types.Offset(w*512)); dup >= 0 {
				t.Errorf("worker %d saw unexpected duplicate at %d", w, dup)
			}
		}(w)
	}
	wg.Wait()
	if idx.Count() != 8*512 {
		t.Fatalf("count = %d, want %d", idx.Count(), 8*512)
	}
	for i := int64(0); i < 8*512; i++ {
		offset, ok := idx.LookupInt(i)
		if !ok || offset != types.Offset(i) {
			t.Fatalf("lookup %d = (%d,%v)", i, offset, ok)
		}
	}
}

func TestPKIndexSerializeRoundTrip(t *testing.T) {
	idx := NewPrimaryKeyIndex(types.TypeString, 0)
	for i := 0; i < 100; i++ {
		idx.InsertStr(fmt.Sprintf("key-%d", i), types.Offset(i))
	}
	var buf bytes.Buffer
	s := catalog.NewSerializer(&buf)
	idx.Serialize(s)
	if err := s.Err(); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	restored := DeserializePrimaryKeyIndex(catalog.NewDeserializer(bytes.NewReader(buf.Bytes())))
	if restored.Count() != 100 {
		t.Fatalf("restored count = %d", restored.Count())
	}
	for i := 0; i < 100; i++ {
		offset, ok := restored.LookupStr(fmt.Sprintf("key-%d", i))
		if !ok || offset != types.Offset(i) {
			t.Fatalf("restored lookup %d = (%d,%v)", i, offset, ok)
		}
	}
}
