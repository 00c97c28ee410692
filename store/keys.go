// store/keys.go
package store

import "encoding/binary"

// ====== Key 编码（store 与上层共用）======
//
// <view_prefix><contract_be64><user_key> -> value   // View 命名空间
// <undo_prefix>0x00                      -> state   // undo 状态记录
// <undo_prefix>0x80<segment_be64>        -> segment // undo 段
// 0x00 / 0xff                            -> ""      // 哨兵，保证游标双向移动不越界
//
// contract 与 segment 序号用大端编码，数值序 == 字典序。

// AppendU64BE 把 v 以大端字节序追加到 dest。
func AppendU64BE(dest []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dest, buf[:]...)
}

// CreateFullKey 拼出 View 全键：prefix + contract(BE) + key。
func CreateFullKey(prefix []byte, contract uint64, key []byte) []byte {
	full := make([]byte, 0, len(prefix)+8+len(key))
	full = append(full, prefix...)
	full = AppendU64BE(full, contract)
	return append(full, key...)
}

// NextPrefix 返回比所有以 prefix 开头的串都大的最小字节串。
// 末字节 0xff 进位时丢弃并继续；全部进位后返回 nil，表示没有上界。
func NextPrefix(prefix []byte) []byte {
	next := append([]byte(nil), prefix...)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next[:i+1]
		}
	}
	return nil
}
