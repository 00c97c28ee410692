// overlay/errors.go
package overlay

import "errors"

// 错误都是带固定文案的单一错误种类，调用方按需包装或丢弃会话。
var (
	ErrNothingToUndo          = errors.New("nothing to undo")
	ErrNothingToSquash        = errors.New("nothing to squash")
	ErrSetRevisionWithStack   = errors.New("cannot set revision while there is an existing undo stack")
	ErrRevisionDecrease       = errors.New("revision cannot decrease")
	ErrRevisionTooHigh        = errors.New("revision to set is too high")
	ErrUndoPrefixReserved     = errors.New("undo_stack may not have a prefix which begins with 0x00 or 0xff")
	ErrViewPrefixReserved     = errors.New("view may not have a prefix which begins with 0x00 or 0xff")
	ErrViewPrefixEmpty        = errors.New("kv view may not have empty prefix")
	ErrUndoPrefixEmpty        = errors.New("undo_prefix is empty")
	ErrIteratorErased         = errors.New("kv iterator is at an erased value")
	ErrIteratorNotInitialized = errors.New("kv iterator is not initialized")
	ErrBytesTooBig            = errors.New("bytes is too big")
	ErrBadSizeForBytes        = errors.New("bad size for bytes")
	ErrUnknownUndoType        = errors.New("unknown undo_type")
	ErrInvalidUndoFormat      = errors.New("invalid undo format")
)
