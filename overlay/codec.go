// overlay/codec.go
package overlay

import (
	"encoding/binary"
	"math"
)

// undo 段和状态记录的编码。长度用 LEB128 varuint32，定长整数一律
// 小端；段键里的序号则和合约号一样走大端（见 undo.go），保证字典序
// 即数值序。

const (
	undoTypeRemove uint8 = 0
	undoTypePut    uint8 = 1
)

func appendVaruint32(dst []byte, n uint32) []byte {
	for n >= 0x80 {
		dst = append(dst, byte(n)|0x80)
		n >>= 7
	}
	return append(dst, byte(n))
}

func getVaruint32(src []byte) (uint32, []byte, error) {
	var out uint32
	var shift uint
	for i := 0; i < len(src); i++ {
		b := src[i]
		if shift >= 35 {
			return 0, nil, ErrInvalidUndoFormat
		}
		out |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return out, src[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, ErrInvalidUndoFormat
}

func appendBytes(dst, b []byte) ([]byte, error) {
	if uint64(len(b)) > math.MaxUint32 {
		return nil, ErrBytesTooBig
	}
	dst = appendVaruint32(dst, uint32(len(b)))
	return append(dst, b...), nil
}

func getBytes(src []byte) ([]byte, []byte, error) {
	n, rest, err := getVaruint32(src)
	if err != nil {
		return nil, nil, err
	}
	if uint64(n) > uint64(len(rest)) {
		return nil, nil, ErrBadSizeForBytes
	}
	return rest[:n], rest[n:], nil
}

// appendRemoveRecord 编码"恢复为不存在"的逆操作。
func appendRemoveRecord(dst, key []byte) ([]byte, error) {
	dst = append(dst, undoTypeRemove)
	return appendBytes(dst, key)
}

// appendPutRecord 编码"恢复为旧值"的逆操作。
func appendPutRecord(dst, key, value []byte) ([]byte, error) {
	dst = append(dst, undoTypePut)
	dst, err := appendBytes(dst, key)
	if err != nil {
		return nil, err
	}
	return appendBytes(dst, value)
}

// undoState 是落在 state 键上的持久状态。
type undoState struct {
	formatVersion   uint8
	revision        int64
	undoStack       []uint64 // 每个未提交 revision 写出的段数
	nextUndoSegment uint64
}

func encodeUndoState(s *undoState) []byte {
	out := make([]byte, 0, 1+8+5+8*len(s.undoStack)+8)
	out = append(out, s.formatVersion)
	out = binary.LittleEndian.AppendUint64(out, uint64(s.revision))
	out = appendVaruint32(out, uint32(len(s.undoStack)))
	for _, n := range s.undoStack {
		out = binary.LittleEndian.AppendUint64(out, n)
	}
	out = binary.LittleEndian.AppendUint64(out, s.nextUndoSegment)
	return out
}

func decodeUndoState(src []byte) (*undoState, error) {
	if len(src) < 1 {
		return nil, ErrInvalidUndoFormat
	}
	s := &undoState{formatVersion: src[0]}
	if s.formatVersion != 0 {
		return nil, ErrInvalidUndoFormat
	}
	src = src[1:]
	if len(src) < 8 {
		return nil, ErrInvalidUndoFormat
	}
	s.revision = int64(binary.LittleEndian.Uint64(src))
	src = src[8:]
	count, src, err := getVaruint32(src)
	if err != nil {
		return nil, err
	}
	if uint64(len(src)) < uint64(count)*8+8 {
		return nil, ErrInvalidUndoFormat
	}
	if count > 0 {
		s.undoStack = make([]uint64, count)
	}
	for i := range s.undoStack {
		s.undoStack[i] = binary.LittleEndian.Uint64(src)
		src = src[8:]
	}
	s.nextUndoSegment = binary.LittleEndian.Uint64(src)
	return s, nil
}
