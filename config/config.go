// config/config.go
package config

// Config 主配置结构
type Config struct {
	Database DatabaseConfig
	Undo     UndoConfig
	Log      LogConfig
}

// DatabaseConfig 底层 KV 引擎配置
type DatabaseConfig struct {
	// 后端选择："pebble"（默认）或 "badger"
	Backend string

	// 通用调优
	Threads      int // 压实并发；0 表示用引擎默认值
	MaxOpenFiles int // 500
	BytesPerSync int // 1 << 20 (1MB)，周期性 sync 步长

	// BadgerDB 专用
	ValueLogFileSize int64 // 64 << 20 (64MB)
	MaxTableSize     int64 // 16 << 20 (16MB)
	NumMemtables     int   // 3
}

// UndoConfig undo 栈配置
type UndoConfig struct {
	// 单个 undo 段的软上限，写满后切新段。测试会调小它来制造多段。
	TargetSegmentSize uint64 // 64 << 20 (64MB)
}

// LogConfig 日志配置
type LogConfig struct {
	Level int // logs.LevelInfo
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend:          "pebble",
			Threads:          0,
			MaxOpenFiles:     500,
			BytesPerSync:     1 << 20,
			ValueLogFileSize: 64 << 20,
			MaxTableSize:     16 << 20,
			NumMemtables:     3,
		},
		Undo: UndoConfig{
			TargetSegmentSize: 64 << 20,
		},
		Log: LogConfig{
			Level: 3, // logs.LevelInfo
		},
	}
}
