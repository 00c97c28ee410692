// overlay/undo.go
package overlay

import (
	"bytes"
	"fmt"
	"math"

	"chainkv/config"
	"chainkv/logs"
	"chainkv/store"
)

// UndoStack 维护分段持久化的回滚日志。布局：
//
//	undo_prefix ‖ 0x00              状态记录（版本、revision、各层段数、下个段号）
//	undo_prefix ‖ 0x80 ‖ seg_be64   undo 段，每段是一串逆操作记录
//
// 栈里每个元素对应一个未提交的 revision，记录该层写出的段数。
// 所有持久操作都是单个原子 batch；batch 提交失败时内存状态不回滚，
// 调用方应弃用实例，重开后以盘上状态记录为准。
type UndoStack struct {
	db                *store.Database
	undoPrefix        []byte
	statePrefix       []byte
	segmentPrefix     []byte
	segmentNextPrefix []byte
	targetSegmentSize uint64
	state             undoState
}

// NewUndoStack 校验前缀、加载已有状态记录。cfg 传 nil 用默认段大小。
func NewUndoStack(db *store.Database, undoPrefix []byte, cfg *config.UndoConfig) (*UndoStack, error) {
	if len(undoPrefix) == 0 {
		return nil, ErrUndoPrefixEmpty
	}
	if undoPrefix[0] == 0x00 || undoPrefix[0] == 0xff {
		return nil, ErrUndoPrefixReserved
	}

	u := &UndoStack{
		db:                db,
		undoPrefix:        append([]byte{}, undoPrefix...),
		targetSegmentSize: 64 << 20,
	}
	if cfg != nil && cfg.TargetSegmentSize > 0 {
		u.targetSegmentSize = cfg.TargetSegmentSize
	}
	u.statePrefix = append(append([]byte{}, u.undoPrefix...), 0x00)
	u.segmentPrefix = append(append([]byte{}, u.undoPrefix...), 0x80)
	u.segmentNextPrefix = store.NextPrefix(u.segmentPrefix)

	v, found, err := db.Get(u.statePrefix)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	if found {
		st, err := decodeUndoState(v)
		if err != nil {
			return nil, err
		}
		u.state = *st
	}
	return u, nil
}

func (u *UndoStack) Revision() int64 { return u.state.revision }

// SetRevision 跳转 revision。只允许在没有未提交层时上调。
func (u *UndoStack) SetRevision(revision uint64) error {
	if len(u.state.undoStack) != 0 {
		return ErrSetRevisionWithStack
	}
	if revision > math.MaxInt64 {
		return ErrRevisionTooHigh
	}
	if int64(revision) < u.state.revision {
		return ErrRevisionDecrease
	}
	u.state.revision = int64(revision)
	return u.writeState()
}

// Push 开一个新的 undo 层，revision 加一。
func (u *UndoStack) Push() error {
	u.state.undoStack = append(u.state.undoStack, 0)
	u.state.revision++
	return u.writeState()
}

// Squash 把最顶上两层合成一层。段本身不动，只合并段计数。
func (u *UndoStack) Squash() error {
	if len(u.state.undoStack) < 2 {
		return ErrNothingToSquash
	}
	n := u.state.undoStack[len(u.state.undoStack)-1]
	u.state.undoStack = u.state.undoStack[:len(u.state.undoStack)-1]
	u.state.undoStack[len(u.state.undoStack)-1] += n
	u.state.revision--
	return u.writeState()
}

// Undo 回滚最顶层：从高段号往低段号逆序扫该层的段，按段内记录顺序
// 重放逆操作，连同段键一起删掉，最后更新状态，整批原子提交。
func (u *UndoStack) Undo() error {
	if len(u.state.undoStack) == 0 {
		return ErrNothingToUndo
	}
	batch := u.db.NewBatch()

	cursor, err := u.db.NewCursor()
	if err != nil {
		return err
	}
	defer cursor.Close()

	back := u.state.undoStack[len(u.state.undoStack)-1]
	first := u.segmentKey(u.state.nextUndoSegment - back)

	if cursor.Seek(u.segmentNextPrefix) {
		cursor.Prev()
	}
	for cursor.Valid() {
		segmentKey := cursor.Key()
		if bytes.Compare(segmentKey, first) < 0 {
			break
		}
		if err := applySegment(batch, cursor.Value()); err != nil {
			return err
		}
		batch.Delete(segmentKey)
		cursor.Prev()
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}

	u.state.nextUndoSegment -= back
	u.state.undoStack = u.state.undoStack[:len(u.state.undoStack)-1]
	u.state.revision--
	u.writeStateTo(batch)
	return u.db.Write(batch)
}

// applySegment 把一个段里的逆操作重放进 batch。
func applySegment(batch store.Batch, segment []byte) error {
	for len(segment) > 0 {
		typ := segment[0]
		segment = segment[1:]
		switch typ {
		case undoTypeRemove:
			key, rest, err := getBytes(segment)
			if err != nil {
				return err
			}
			batch.Delete(key)
			segment = rest
		case undoTypePut:
			key, rest, err := getBytes(segment)
			if err != nil {
				return err
			}
			value, rest, err := getBytes(rest)
			if err != nil {
				return err
			}
			batch.Put(key, value)
			segment = rest
		default:
			return ErrUnknownUndoType
		}
	}
	return nil
}

// Commit 丢弃早于 revision 的历史。被合入的层出栈，它们的段用一次
// 范围删除 [seg(0), seg(keep)) 清掉。
func (u *UndoStack) Commit(revision int64) error {
	if revision > u.state.revision {
		revision = u.state.revision
	}
	firstRevision := u.state.revision - int64(len(u.state.undoStack))
	if firstRevision >= revision {
		return nil
	}

	batch := u.db.NewBatch()
	u.state.undoStack = u.state.undoStack[revision-firstRevision:]
	keep := u.state.nextUndoSegment
	for _, n := range u.state.undoStack {
		keep -= n
	}
	if keep > 0 {
		batch.DeleteRange(u.segmentKey(0), u.segmentKey(keep))
	}
	u.writeStateTo(batch)
	return u.db.Write(batch)
}

// WriteChanges 把 session 改动链落盘。正向修改进 batch；栈非空时同步
// 往当前段缓冲追加逆操作记录，缓冲到达软上限就切段。状态记录总是
// 跟着同一个 batch 写出。
func (u *UndoStack) WriteChanges(ws *WriteSession) error {
	batch := u.db.NewBatch()
	var segment []byte

	writeSegment := func() {
		if len(segment) == 0 {
			return
		}
		// batch 持有自己的拷贝，缓冲可以复用。
		batch.Put(u.segmentKey(u.state.nextUndoSegment), segment)
		u.state.nextUndoSegment++
		u.state.undoStack[len(u.state.undoStack)-1]++
		segment = segment[:0]
	}

	appendRecord := func(record []byte) {
		if uint64(len(segment))+uint64(len(record)) > u.targetSegmentSize {
			writeSegment()
		}
		segment = append(segment, record...)
	}

	for cv := ws.changeList; cv != nil; cv = cv.changeListNext {
		if !cv.dirty() {
			continue
		}
		if cv.currentValue != nil {
			batch.Put(cv.key, cv.currentValue)
		} else {
			batch.Delete(cv.key)
		}

		if len(u.state.undoStack) == 0 {
			continue
		}
		var (
			record []byte
			err    error
		)
		if cv.origValue != nil {
			record, err = appendPutRecord(nil, cv.key, cv.origValue)
		} else {
			record, err = appendRemoveRecord(nil, cv.key)
		}
		if err != nil {
			return err
		}
		appendRecord(record)
	}

	writeSegment()
	u.writeStateTo(batch)
	logs.Trace("write_changes: ops=%d revision=%d next_segment=%d",
		batch.Count(), u.state.revision, u.state.nextUndoSegment)
	return u.db.Write(batch)
}

func (u *UndoStack) writeStateTo(batch store.Batch) {
	batch.Put(u.statePrefix, encodeUndoState(&u.state))
}

func (u *UndoStack) writeState() error {
	batch := u.db.NewBatch()
	u.writeStateTo(batch)
	return u.db.Write(batch)
}

func (u *UndoStack) segmentKey(segment uint64) []byte {
	return store.AppendU64BE(append([]byte{}, u.segmentPrefix...), segment)
}
