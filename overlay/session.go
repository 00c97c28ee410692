// overlay/session.go
package overlay

import (
	"fmt"

	"chainkv/store"
)

// WriteSession 把一批修改先攒在内存 overlay 里，WriteChanges 时一次性
// 落盘。缓存同时兼做读缓存：读到的底层值也会进缓存，迭代器靠这一点
// 保证范围两侧的"路标"键都在缓存里。
//
// 非线程安全，调用方自行串行化同一 session 上的所有操作。
type WriteSession struct {
	db         *store.Database
	cache      *cacheMap
	changeList *cachedValue // 头插链表，nil 表示没有改动
}

func NewWriteSession(db *store.Database) *WriteSession {
	return &WriteSession{db: db, cache: newCacheMap()}
}

// DB 返回底层库句柄，迭代器建游标时用。
func (s *WriteSession) DB() *store.Database { return s.db }

func (s *WriteSession) changed(cv *cachedValue) {
	if cv.inChangeList {
		return
	}
	cv.inChangeList = true
	cv.changeListNext = s.changeList
	s.changeList = cv
}

// Get 按全键读取。缓存命中时直接返回逻辑值；未命中且底层存在时
// 把值以干净条目放进缓存。底层不存在不缓存，避免扫描缺失键撑爆缓存。
// 返回的切片是共享只读的，调用方不得修改。
func (s *WriteSession) Get(fullKey []byte) ([]byte, bool, error) {
	if cv := s.cache.find(fullKey); cv != nil {
		if cv.currentValue == nil {
			return nil, false, nil
		}
		return cv.currentValue, true, nil
	}

	v, found, err := s.db.Get(fullKey)
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	s.cache.insert(&cachedValue{key: cloneBytes(fullKey), origValue: v, currentValue: v})
	return v, true, nil
}

// Set 写入全键。值与底层一致时只记一个干净条目（登记"存在"但不进
// 改动链），迭代器依赖这种存在性缓存。
func (s *WriteSession) Set(fullKey, value []byte) error {
	v := cloneBytes(value)

	if cv := s.cache.find(fullKey); cv != nil {
		if !valuesEqual(cv.currentValue, v) {
			cv.currentValue = v
			s.changed(cv)
		}
		return nil
	}

	orig, found, err := s.db.Get(fullKey)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if !found {
		cv := &cachedValue{key: cloneBytes(fullKey), currentValue: v}
		s.cache.insert(cv)
		s.changed(cv)
		return nil
	}
	if valuesEqual(orig, v) {
		s.cache.insert(&cachedValue{key: cloneBytes(fullKey), origValue: orig, currentValue: orig})
		return nil
	}
	cv := &cachedValue{key: cloneBytes(fullKey), origValue: orig, currentValue: v}
	s.cache.insert(cv)
	s.changed(cv)
	return nil
}

// Erase 删除全键。条目已是删除态时是幂等空操作；键在底层也不存在时
// 记一个干净的"不存在"条目，同样不进改动链。
func (s *WriteSession) Erase(fullKey []byte) error {
	if cv := s.cache.find(fullKey); cv != nil {
		if cv.currentValue != nil {
			cv.numErases++
			cv.currentValue = nil
			s.changed(cv)
		}
		return nil
	}

	orig, found, err := s.db.Get(fullKey)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if !found {
		s.cache.insert(&cachedValue{key: cloneBytes(fullKey)})
		return nil
	}
	cv := &cachedValue{key: cloneBytes(fullKey), numErases: 1, origValue: orig}
	s.cache.insert(cv)
	s.changed(cv)
	return nil
}

// fillCache 把游标经过的底层键值登记成干净条目，已缓存则原样返回。
func (s *WriteSession) fillCache(fullKey, value []byte) *cachedValue {
	if cv := s.cache.find(fullKey); cv != nil {
		return cv
	}
	v := cloneBytes(value)
	cv := &cachedValue{key: cloneBytes(fullKey), origValue: v, currentValue: v}
	s.cache.insert(cv)
	return cv
}

// WriteChanges 把改动链落盘，undo 记录由 u 负责写在同一个批里。
// 落盘后缓存保持原样，session 用完即弃。
func (s *WriteSession) WriteChanges(u *UndoStack) error {
	return u.WriteChanges(s)
}
