// overlay/session_test.go
package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// 落盘前 overlay 内的读写必须看到最近一次 set/erase 的结果。
func TestSessionOverlayReads(t *testing.T) {
	db := openDB(t)
	session := NewWriteSession(db)

	_, found, err := session.Get([]byte{0x20, 0x01})
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x40}))
	v, found, err := session.Get([]byte{0x20, 0x01})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0x40}, v)

	// 空值和不存在是两回事
	require.NoError(t, session.Set([]byte{0x20, 0x02}, []byte{}))
	v, found, err = session.Get([]byte{0x20, 0x02})
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, v)
	require.Len(t, v, 0)

	require.NoError(t, session.Erase([]byte{0x20, 0x01}))
	_, found, err = session.Get([]byte{0x20, 0x01})
	require.NoError(t, err)
	require.False(t, found)

	// 删掉不存在的键是幂等空操作
	require.NoError(t, session.Erase([]byte{0x20, 0x07}))
	_, found, err = session.Get([]byte{0x20, 0x07})
	require.NoError(t, err)
	require.False(t, found)
}

// 同键多次修改在落盘时合并，只写最终值。
func TestSessionCoalescing(t *testing.T) {
	db := openDB(t)
	undo, err := NewUndoStack(db, []byte{0x10}, nil)
	require.NoError(t, err)

	session := NewWriteSession(db)
	require.NoError(t, session.Set([]byte{0x20, 0x00}, []byte{}))
	require.NoError(t, session.Set([]byte{0x20, 0x02}, []byte{0x50}))
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x40}))
	require.NoError(t, session.Erase([]byte{0x20, 0x02}))
	require.NoError(t, session.Set([]byte{0x20, 0x03}, []byte{0x60}))
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x50}))
	require.NoError(t, session.WriteChanges(undo))

	requireKVs(t, getAll(t, db, []byte{0x20}), []kv{
		{[]byte{0x20, 0x00}, []byte{}},
		{[]byte{0x20, 0x01}, []byte{0x50}},
		{[]byte{0x20, 0x03}, []byte{0x60}},
	})

	// 没 push 过就没有 undo 段
	require.Equal(t, 0, segmentCount(t, db, []byte{0x10}))
}

// 落盘后新 session 读到的值与旧 session 的最终状态一致。
func TestSessionFlushRoundTrip(t *testing.T) {
	db := openDB(t)
	undo, err := NewUndoStack(db, []byte{0x10}, nil)
	require.NoError(t, err)

	session := NewWriteSession(db)
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x40}))
	require.NoError(t, session.Erase([]byte{0x20, 0x02}))
	require.NoError(t, session.WriteChanges(undo))

	fresh := NewWriteSession(db)
	v, found, err := fresh.Get([]byte{0x20, 0x01})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0x40}, v)
	_, found, err = fresh.Get([]byte{0x20, 0x02})
	require.NoError(t, err)
	require.False(t, found)
}

// set 成与底层相同的值只登记存在性，不算改动：push 之后这样的
// 写不会产生 undo 段。
func TestSessionSetEqualValueIsClean(t *testing.T) {
	db := openDB(t)
	undo, err := NewUndoStack(db, []byte{0x10}, nil)
	require.NoError(t, err)

	session := NewWriteSession(db)
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x40}))
	require.NoError(t, session.WriteChanges(undo))

	require.NoError(t, undo.Push())
	session = NewWriteSession(db)
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x40}))
	require.NoError(t, session.WriteChanges(undo))
	require.Equal(t, 0, segmentCount(t, db, []byte{0x10}))

	// 先改后改回去也一样：逻辑值与底层一致就不落盘
	session = NewWriteSession(db)
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x41}))
	require.NoError(t, session.Set([]byte{0x20, 0x01}, []byte{0x40}))
	require.NoError(t, session.WriteChanges(undo))
	require.Equal(t, 0, segmentCount(t, db, []byte{0x10}))
}
