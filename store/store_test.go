// store/store_test.go
package store

import (
	"bytes"
	"testing"

	"chainkv/config"
)

func openTestDB(t *testing.T, backend string) *Database {
	t.Helper()
	cfg := config.DefaultConfig().Database
	cfg.Backend = backend
	db, err := Open(t.TempDir(), &cfg)
	if err != nil {
		t.Fatalf("open %s: %v", backend, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenWritesSentinels(t *testing.T) {
	db := openTestDB(t, BackendPebble)
	for _, k := range [][]byte{SentinelMin, SentinelMax} {
		v, found, err := db.Get(k)
		if err != nil {
			t.Fatalf("get sentinel %x: %v", k, err)
		}
		if !found {
			t.Fatalf("sentinel %x missing", k)
		}
		if v == nil || len(v) != 0 {
			t.Fatalf("sentinel %x value = %x, want present empty", k, v)
		}
	}
}

func TestGetDistinguishesEmptyAndMissing(t *testing.T) {
	db := openTestDB(t, BackendPebble)

	batch := db.NewBatch()
	batch.Put([]byte{0x20, 0x01}, []byte{})
	if err := db.Write(batch); err != nil {
		t.Fatal(err)
	}

	v, found, err := db.Get([]byte{0x20, 0x01})
	if err != nil || !found {
		t.Fatalf("get present empty: found=%v err=%v", found, err)
	}
	if v == nil {
		t.Fatal("present empty value must be non-nil")
	}
	_, found, err = db.Get([]byte{0x20, 0x02})
	if err != nil || found {
		t.Fatalf("get missing: found=%v err=%v", found, err)
	}
}

func testBatchAndCursor(t *testing.T, backend string) {
	db := openTestDB(t, backend)

	batch := db.NewBatch()
	batch.Put([]byte{0x20, 0x01}, []byte{0x41})
	batch.Put([]byte{0x20, 0x02}, []byte{0x42})
	batch.Put([]byte{0x20, 0x03}, []byte{0x43})
	batch.Put([]byte{0x20, 0x04}, []byte{0x44})
	batch.Delete([]byte{0x20, 0x02})
	if err := db.Write(batch); err != nil {
		t.Fatal(err)
	}

	cursor, err := db.NewCursor()
	if err != nil {
		t.Fatal(err)
	}
	defer cursor.Close()

	// 正向扫 {0x20} 前缀
	var keys [][]byte
	for ok := cursor.Seek([]byte{0x20}); ok; ok = cursor.Next() {
		if bytes.Compare(cursor.Key(), []byte{0x21}) >= 0 {
			break
		}
		keys = append(keys, append([]byte{}, cursor.Key()...))
	}
	if err := cursor.Err(); err != nil {
		t.Fatal(err)
	}
	wantKeys := [][]byte{{0x20, 0x01}, {0x20, 0x03}, {0x20, 0x04}}
	if len(keys) != len(wantKeys) {
		t.Fatalf("forward scan got %d keys, want %d", len(keys), len(wantKeys))
	}
	for i := range keys {
		if !bytes.Equal(keys[i], wantKeys[i]) {
			t.Fatalf("key[%d] = %x, want %x", i, keys[i], wantKeys[i])
		}
	}

	// 反向：从 {0x20,0x03} 回退到 {0x20,0x01}
	if !cursor.Seek([]byte{0x20, 0x03}) {
		t.Fatal("seek {0x20,0x03} failed")
	}
	if !cursor.Prev() {
		t.Fatal("prev failed")
	}
	if !bytes.Equal(cursor.Key(), []byte{0x20, 0x01}) {
		t.Fatalf("prev landed on %x, want {0x20,0x01}", cursor.Key())
	}
	if !bytes.Equal(cursor.Value(), []byte{0x41}) {
		t.Fatalf("prev value = %x, want {0x41}", cursor.Value())
	}

	// 哨兵兜底：再往前是 0x00
	if !cursor.Prev() {
		t.Fatal("prev to sentinel failed")
	}
	if !bytes.Equal(cursor.Key(), SentinelMin) {
		t.Fatalf("prev landed on %x, want min sentinel", cursor.Key())
	}

	// 范围删除 [0x20 0x02, 0x20 0x04)
	batch = db.NewBatch()
	batch.DeleteRange([]byte{0x20, 0x02}, []byte{0x20, 0x04})
	if err := db.Write(batch); err != nil {
		t.Fatal(err)
	}
	_, found, err := db.Get([]byte{0x20, 0x03})
	if err != nil || found {
		t.Fatalf("{0x20,0x03} should be range-deleted: found=%v err=%v", found, err)
	}
	_, found, err = db.Get([]byte{0x20, 0x04})
	if err != nil || !found {
		t.Fatalf("{0x20,0x04} is outside the half-open range: found=%v err=%v", found, err)
	}
}

func TestBatchAndCursorPebble(t *testing.T) { testBatchAndCursor(t, BackendPebble) }
func TestBatchAndCursorBadger(t *testing.T) { testBatchAndCursor(t, BackendBadger) }

func TestFlushAndReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig().Database

	db, err := Open(dir, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	batch := db.NewBatch()
	batch.Put([]byte{0x20, 0x01}, []byte{0x41})
	if err := db.Write(batch); err != nil {
		t.Fatal(err)
	}
	if err := db.Flush(true); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(dir, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	v, found, err := db.Get([]byte{0x20, 0x01})
	if err != nil || !found || !bytes.Equal(v, []byte{0x41}) {
		t.Fatalf("reopen get = %x found=%v err=%v", v, found, err)
	}
}
