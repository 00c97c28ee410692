// overlay/codec_test.go
package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaruint32RoundTrip(t *testing.T) {
	for _, n := range []uint32{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0xffffffff} {
		enc := appendVaruint32(nil, n)
		got, rest, err := getVaruint32(enc)
		require.NoError(t, err)
		require.Equal(t, n, got)
		require.Empty(t, rest)
	}
}

func TestVaruint32Truncated(t *testing.T) {
	_, _, err := getVaruint32(nil)
	require.ErrorIs(t, err, ErrInvalidUndoFormat)
	_, _, err = getVaruint32([]byte{0x80})
	require.ErrorIs(t, err, ErrInvalidUndoFormat)
	// 五个延续字节加终止字节共六字节，超过 varuint32 的五字节上限
	_, _, err = getVaruint32([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	require.ErrorIs(t, err, ErrInvalidUndoFormat)
}

func TestGetBytesBadSize(t *testing.T) {
	enc := appendVaruint32(nil, 10)
	enc = append(enc, 0x01, 0x02)
	_, _, err := getBytes(enc)
	require.ErrorIs(t, err, ErrBadSizeForBytes)
}

func TestRecordRoundTrip(t *testing.T) {
	seg, err := appendPutRecord(nil, []byte{0x20, 0x01}, []byte{0x40})
	require.NoError(t, err)
	seg, err = appendRemoveRecord(seg, []byte{0x20, 0x02})
	require.NoError(t, err)

	require.Equal(t, undoTypePut, seg[0])
	key, rest, err := getBytes(seg[1:])
	require.NoError(t, err)
	require.Equal(t, []byte{0x20, 0x01}, key)
	value, rest, err := getBytes(rest)
	require.NoError(t, err)
	require.Equal(t, []byte{0x40}, value)

	require.Equal(t, undoTypeRemove, rest[0])
	key, rest, err = getBytes(rest[1:])
	require.NoError(t, err)
	require.Equal(t, []byte{0x20, 0x02}, key)
	require.Empty(t, rest)
}

func TestApplySegmentUnknownType(t *testing.T) {
	db := openDB(t)
	batch := db.NewBatch()
	err := applySegment(batch, []byte{0x07})
	require.ErrorIs(t, err, ErrUnknownUndoType)
}

func TestUndoStateRoundTrip(t *testing.T) {
	in := &undoState{
		revision:        42,
		undoStack:       []uint64{3, 0, 7},
		nextUndoSegment: 10,
	}
	out, err := decodeUndoState(encodeUndoState(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	// 空栈也要能编解码
	in = &undoState{}
	out, err = decodeUndoState(encodeUndoState(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestUndoStateBadFormat(t *testing.T) {
	_, err := decodeUndoState(nil)
	require.ErrorIs(t, err, ErrInvalidUndoFormat)

	// 未知版本号
	enc := encodeUndoState(&undoState{})
	enc[0] = 1
	_, err = decodeUndoState(enc)
	require.ErrorIs(t, err, ErrInvalidUndoFormat)

	// 截断
	enc = encodeUndoState(&undoState{undoStack: []uint64{1, 2}})
	_, err = decodeUndoState(enc[:len(enc)-4])
	require.ErrorIs(t, err, ErrInvalidUndoFormat)
}
