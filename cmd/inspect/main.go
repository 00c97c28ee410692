// cmd/inspect/main.go
//
// 离线检查工具：只读打开数据库，打印 undo 状态记录、段分布，
// 或者按十六进制前缀扫描键空间。
//
//	go run ./cmd/inspect -db ./data/chainkv -undo 10
//	go run ./cmd/inspect -db ./data/chainkv -scan 70 -limit 50
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"chainkv/config"
	"chainkv/logs"
	"chainkv/store"
)

func main() {
	var (
		dbPath  = flag.String("db", "./data/chainkv", "database path")
		backend = flag.String("backend", "pebble", "store backend: pebble or badger")
		undo    = flag.String("undo", "", "undo prefix (hex); print undo state and segments")
		scan    = flag.String("scan", "", "key prefix (hex) to scan")
		limit   = flag.Int("limit", 20, "max keys to print per scan")
	)
	flag.Parse()
	logs.SetLevel(logs.LevelWarning)

	cfg := config.DefaultConfig()
	cfg.Database.Backend = *backend

	db, err := store.OpenReadOnly(*dbPath, &cfg.Database)
	if err != nil {
		fmt.Printf("Failed to open DB: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *undo != "" {
		prefix, err := hex.DecodeString(*undo)
		if err != nil {
			fmt.Printf("Bad undo prefix: %v\n", err)
			os.Exit(1)
		}
		if err := dumpUndo(db, prefix); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *scan != "" {
		prefix, err := hex.DecodeString(*scan)
		if err != nil {
			fmt.Printf("Bad scan prefix: %v\n", err)
			os.Exit(1)
		}
		if err := scanKeys(db, prefix, *limit); err != nil {
			fmt.Printf("Error during scan: %v\n", err)
			os.Exit(1)
		}
	}
}

func dumpUndo(db *store.Database, undoPrefix []byte) error {
	stateKey := append(append([]byte{}, undoPrefix...), 0x00)
	v, found, err := db.Get(stateKey)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No undo state at prefix %x\n", undoPrefix)
		return store.ErrKVNotFound
	}
	fmt.Printf("Undo state at %x: %d bytes raw=%x\n", undoPrefix, len(v), v)

	segmentPrefix := append(append([]byte{}, undoPrefix...), 0x80)
	return scanRange(db, segmentPrefix, func(key, value []byte) {
		fmt.Printf("  segment %x: %d bytes\n", key[len(segmentPrefix):], len(value))
	}, 0)
}

func scanKeys(db *store.Database, prefix []byte, limit int) error {
	fmt.Printf("Scanning prefix: %x\n", prefix)
	count := 0
	err := scanRange(db, prefix, func(key, value []byte) {
		count++
		fmt.Printf("Key: %x  Value: %d bytes\n", key, len(value))
	}, limit)
	if err != nil {
		return err
	}
	fmt.Printf("Total found in prefix: %d\n", count)
	return nil
}

func scanRange(db *store.Database, prefix []byte, fn func(key, value []byte), limit int) error {
	cursor, err := db.NewCursor()
	if err != nil {
		return err
	}
	defer cursor.Close()

	end := store.NextPrefix(prefix)
	n := 0
	for ok := cursor.Seek(prefix); ok; ok = cursor.Next() {
		if end != nil && bytes.Compare(cursor.Key(), end) >= 0 {
			break
		}
		fn(cursor.Key(), cursor.Value())
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return cursor.Err()
}
