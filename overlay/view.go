// overlay/view.go
package overlay

import (
	"bytes"
	"fmt"

	"chainkv/store"
)

// View 把读写限定在 view_prefix ‖ contract_be64 命名空间内。
// get/set/erase 只是拼好全键转发给 session，迭代逻辑都在 Iterator 里。
type View struct {
	session *WriteSession
	prefix  []byte
}

// NewView 校验前缀后创建视图。0x00/0xff 开头的前缀留给哨兵，不允许使用。
func NewView(s *WriteSession, prefix []byte) (*View, error) {
	if len(prefix) == 0 {
		return nil, ErrViewPrefixEmpty
	}
	if prefix[0] == 0x00 || prefix[0] == 0xff {
		return nil, ErrViewPrefixReserved
	}
	return &View{session: s, prefix: cloneBytes(prefix)}, nil
}

func (v *View) Get(contract uint64, key []byte) ([]byte, bool, error) {
	return v.session.Get(store.CreateFullKey(v.prefix, contract, key))
}

func (v *View) Set(contract uint64, key, value []byte) error {
	return v.session.Set(store.CreateFullKey(v.prefix, contract, key), value)
}

func (v *View) Erase(contract uint64, key []byte) error {
	return v.session.Erase(store.CreateFullKey(v.prefix, contract, key))
}

// KeyValue 是迭代器的解引用结果。Key 不含 view 前缀和合约号。
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Iterator 在 overlay 缓存和底层游标的合并视图上双向迭代。
//
// 核心玩法：位置永远落在缓存条目上，底层游标只负责把当前位置附近的
// 底层键补进缓存。构造时先把范围首键、范围前一键、范围外首键三个
// 路标灌进缓存，此后缓存游标向两侧走永远有条目可踩，不必再单独比较
// "底层下一个 vs 缓存下一个"。哨兵保证底层游标在两端各能多走一步。
type Iterator struct {
	view             *View
	prefix           []byte // view_prefix ‖ contract ‖ user_prefix
	nextPrefix       []byte
	hiddenPrefixSize int

	cacheIt          *cachedValue // nil 表示 end
	cacheItNumErases uint64
	cursor           store.Cursor
}

// Iterator 创建一个范围为 userPrefix 的迭代器，初始位置在 end。
func (v *View) Iterator(contract uint64, userPrefix []byte) (*Iterator, error) {
	cursor, err := v.session.db.NewCursor()
	if err != nil {
		return nil, err
	}
	it := &Iterator{
		view:             v,
		prefix:           store.CreateFullKey(v.prefix, contract, userPrefix),
		hiddenPrefixSize: len(v.prefix) + 8,
		cursor:           cursor,
	}
	it.nextPrefix = store.NextPrefix(it.prefix)

	// 预热三个路标。哨兵保证这三次定位都落在有效键上。
	if err := it.warm(); err != nil {
		cursor.Close()
		return nil, err
	}
	it.MoveToEnd()
	return it, nil
}

func (it *Iterator) warm() error {
	s := it.view.session
	if it.cursor.Seek(it.prefix) {
		s.fillCache(it.cursor.Key(), it.cursor.Value())
	}
	if err := it.cursor.Err(); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if it.cursor.Prev() {
		s.fillCache(it.cursor.Key(), it.cursor.Value())
	}
	if err := it.cursor.Err(); err != nil {
		return fmt.Errorf("prev: %w", err)
	}
	if it.cursor.Seek(it.nextPrefix) {
		s.fillCache(it.cursor.Key(), it.cursor.Value())
	}
	if err := it.cursor.Err(); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

// Close 释放底层游标。之后再操作这个迭代器会报未初始化。
func (it *Iterator) Close() error {
	if it.cursor == nil {
		return nil
	}
	err := it.cursor.Close()
	it.cursor = nil
	it.cacheIt = nil
	return err
}

func (it *Iterator) checkInitialized() error {
	if it.cursor == nil {
		return ErrIteratorNotInitialized
	}
	return nil
}

func (it *Iterator) MoveToBegin() error {
	if err := it.checkInitialized(); err != nil {
		return err
	}
	return it.lowerBoundFullKey(it.prefix)
}

func (it *Iterator) MoveToEnd() {
	it.cacheIt = nil
}

// LowerBound 定位到 >= key 的第一个有效条目。key 小于 user_prefix 时
// 提升到范围起点。
func (it *Iterator) LowerBound(key []byte) error {
	if err := it.checkInitialized(); err != nil {
		return err
	}
	userPrefix := it.prefix[it.hiddenPrefixSize:]
	if bytes.Compare(key, userPrefix) < 0 {
		key = userPrefix
	}
	fullKey := make([]byte, 0, it.hiddenPrefixSize+len(key))
	fullKey = append(fullKey, it.prefix[:it.hiddenPrefixSize]...)
	fullKey = append(fullKey, key...)
	return it.lowerBoundFullKey(fullKey)
}

// lowerBoundFullKey 先让底层游标落位并把落点灌进缓存，再取缓存里
// >= fullKey 的条目，然后跳过所有删除态条目。跳的时候底层游标始终
// 保持在缓存位置之后，沿途把底层键都补进缓存。
func (it *Iterator) lowerBoundFullKey(fullKey []byte) error {
	s := it.view.session

	if it.cursor.Seek(fullKey) {
		it.cacheIt = s.fillCache(it.cursor.Key(), it.cursor.Value())
	} else {
		it.cacheIt = nil
	}
	if err := it.cursor.Err(); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if it.cacheIt == nil || !bytes.Equal(it.cacheIt.key, fullKey) {
		it.cacheIt = s.cache.lowerBound(fullKey)
	}

	for it.cacheIt != nil && it.cacheIt.currentValue == nil {
		for it.cursor.Valid() && bytes.Compare(it.cursor.Key(), it.cacheIt.key) <= 0 {
			if !it.cursor.Next() {
				break
			}
			s.fillCache(it.cursor.Key(), it.cursor.Value())
		}
		if err := it.cursor.Err(); err != nil {
			return fmt.Errorf("next: %w", err)
		}
		it.cacheIt = s.cache.next(it.cacheIt.key)
	}

	it.settleForward()
	return nil
}

// settleForward 收尾：越过范围右界就归位到 end，否则记下 num_erases 快照。
func (it *Iterator) settleForward() {
	if it.cacheIt == nil || bytes.Compare(it.cacheIt.key, it.nextPrefix) >= 0 {
		it.cacheIt = nil
		return
	}
	it.cacheItNumErases = it.cacheIt.numErases
}

// Next 前进一格。在 end 上调用时回绕到 begin。
func (it *Iterator) Next() error {
	if err := it.checkInitialized(); err != nil {
		return err
	}
	if it.cacheIt == nil {
		return it.MoveToBegin()
	}
	if it.cacheItNumErases != it.cacheIt.numErases {
		return ErrIteratorErased
	}

	s := it.view.session
	for {
		for it.cursor.Valid() && bytes.Compare(it.cursor.Key(), it.cacheIt.key) <= 0 {
			if !it.cursor.Next() {
				break
			}
			s.fillCache(it.cursor.Key(), it.cursor.Value())
		}
		if err := it.cursor.Err(); err != nil {
			return fmt.Errorf("next: %w", err)
		}
		it.cacheIt = s.cache.next(it.cacheIt.key)
		if it.cacheIt == nil || it.cacheIt.currentValue != nil {
			break
		}
	}

	it.settleForward()
	return nil
}

// Prev 后退一格。在 end 上调用时回绕到范围内最后一个有效条目：
// 和构造路标一样，先让游标落在 next_prefix 上再往回走。
func (it *Iterator) Prev() error {
	if err := it.checkInitialized(); err != nil {
		return err
	}
	s := it.view.session

	if it.cacheIt == nil {
		if it.cursor.Seek(it.nextPrefix) {
			it.cacheIt = s.fillCache(it.cursor.Key(), it.cursor.Value())
		}
		if err := it.cursor.Err(); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		if it.cacheIt == nil || !bytes.Equal(it.cacheIt.key, it.nextPrefix) {
			it.cacheIt = s.cache.lowerBound(it.nextPrefix)
		}
		if it.cacheIt == nil {
			return nil
		}
	} else if it.cacheItNumErases != it.cacheIt.numErases {
		return ErrIteratorErased
	}

	for {
		for it.cursor.Valid() && bytes.Compare(it.cursor.Key(), it.cacheIt.key) >= 0 {
			if !it.cursor.Prev() {
				break
			}
			s.fillCache(it.cursor.Key(), it.cursor.Value())
		}
		if err := it.cursor.Err(); err != nil {
			return fmt.Errorf("prev: %w", err)
		}
		it.cacheIt = s.cache.prev(it.cacheIt.key)
		if it.cacheIt == nil || it.cacheIt.currentValue != nil {
			break
		}
	}

	if it.cacheIt == nil || bytes.Compare(it.cacheIt.key, it.prefix) < 0 {
		it.cacheIt = nil
		return nil
	}
	it.cacheItNumErases = it.cacheIt.numErases
	return nil
}

// KV 返回当前键值，键已去掉 view 前缀和合约号。在 end 上返回 nil。
func (it *Iterator) KV() (*KeyValue, error) {
	if err := it.checkInitialized(); err != nil {
		return nil, err
	}
	if it.cacheIt == nil {
		return nil, nil
	}
	if it.cacheItNumErases != it.cacheIt.numErases {
		return nil, ErrIteratorErased
	}
	return &KeyValue{
		Key:   it.cacheIt.key[it.hiddenPrefixSize:],
		Value: it.cacheIt.currentValue,
	}, nil
}

func (it *Iterator) IsEnd() (bool, error) {
	if err := it.checkInitialized(); err != nil {
		return false, err
	}
	return it.cacheIt == nil, nil
}

// IsValid 报告当前位置可否解引用：不在 end 且脚下没被删过。
func (it *Iterator) IsValid() (bool, error) {
	if err := it.checkInitialized(); err != nil {
		return false, err
	}
	return it.cacheIt != nil && it.cacheItNumErases == it.cacheIt.numErases, nil
}

// Compare 按当前键比较两个迭代器，end 比任何键都大。
func Compare(a, b *Iterator) (int, error) {
	akv, err := a.KV()
	if err != nil {
		return 0, err
	}
	bkv, err := b.KV()
	if err != nil {
		return 0, err
	}
	switch {
	case akv == nil && bkv == nil:
		return 0, nil
	case akv == nil:
		return 1, nil
	case bkv == nil:
		return -1, nil
	default:
		return bytes.Compare(akv.Key, bkv.Key), nil
	}
}
