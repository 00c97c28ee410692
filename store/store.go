// store/store.go
package store

import (
	"fmt"

	"chainkv/config"
	"chainkv/logs"
)

// Database 是底层有序 KV 引擎的薄封装。上层（session / undo stack）
// 只通过 Get / Batch / Cursor / Flush 访问引擎。
type Database struct {
	backend kvBackend
}

// Open 打开（必要时创建）数据库，并校验/写入两个哨兵键。
func Open(path string, cfg *config.DatabaseConfig) (*Database, error) {
	db, err := open(path, cfg, false)
	if err != nil {
		return nil, err
	}
	if err := db.ensureSentinels(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenReadOnly 以只读方式打开已有库（inspect 工具用），不写哨兵。
func OpenReadOnly(path string, cfg *config.DatabaseConfig) (*Database, error) {
	return open(path, cfg, true)
}

func open(path string, cfg *config.DatabaseConfig, readOnly bool) (*Database, error) {
	if cfg == nil {
		cfg = &config.DefaultConfig().Database
	}
	backendName := cfg.Backend
	if backendName == "" {
		backendName = BackendPebble
	}

	var (
		b   kvBackend
		err error
	)
	switch backendName {
	case BackendPebble:
		b, err = newPebbleBackend(path, cfg, readOnly)
	case BackendBadger:
		b, err = newBadgerBackend(path, cfg, readOnly)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backendName)
	}
	if err != nil {
		return nil, err
	}
	logs.Debug("store opened: path=%s backend=%s readonly=%v", path, backendName, readOnly)
	return &Database{backend: b}, nil
}

func (d *Database) ensureSentinels() error {
	batch := d.NewBatch()
	for _, k := range [][]byte{SentinelMin, SentinelMax} {
		_, found, err := d.Get(k)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if !found {
			batch.Put(k, []byte{})
		}
	}
	if batch.Count() == 0 {
		return nil
	}
	return d.Write(batch)
}

// Get 返回键对应的值。未找到时返回 (nil, false, nil)；找到空值时
// 返回长度为 0 的非 nil 切片，上层靠 nil 与否区分"不存在"。
func (d *Database) Get(key []byte) ([]byte, bool, error) {
	return d.backend.Get(key)
}

func (d *Database) NewBatch() Batch { return d.backend.NewBatch() }

// Write 原子提交一个 batch。引擎 WAL 关闭，单条写的持久性交给 Flush。
func (d *Database) Write(b Batch) error {
	if err := d.backend.Write(b); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (d *Database) NewCursor() (Cursor, error) { return d.backend.NewCursor() }

// Flush 强制刷 memtable。wait 为 true 时等刷盘完成后返回。
func (d *Database) Flush(wait bool) error { return d.backend.Flush(wait) }

func (d *Database) Close() error { return d.backend.Close() }
