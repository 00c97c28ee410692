// overlay/cache.go
package overlay

import (
	"bytes"

	"github.com/google/btree"
)

// cachedValue 是 overlay 缓存里的一个条目。值切片一律只读共享：
// nil 表示"不存在/已删除"，长度为 0 的非 nil 切片表示"存在但为空"。
type cachedValue struct {
	key       []byte
	numErases uint64 // 每次删除自增，迭代器靠快照比对发现脚下被删

	origValue    []byte // 第一次接触时底层库里的值；nil = 当时不存在
	currentValue []byte // 当前逻辑值；nil = 已逻辑删除

	inChangeList   bool
	changeListNext *cachedValue // 侵入式单链表，串起改过的条目
}

func (c *cachedValue) Less(than btree.Item) bool {
	return bytes.Compare(c.key, than.(*cachedValue).key) < 0
}

// dirty 判断条目相对底层库是否有待落盘的修改。
func (c *cachedValue) dirty() bool {
	if (c.origValue == nil) != (c.currentValue == nil) {
		return true
	}
	return c.origValue != nil && !bytes.Equal(c.origValue, c.currentValue)
}

// cacheMap 是按全键字典序排序的 overlay 缓存。条目都在堆上，
// 指针在插入其他键后保持有效，迭代器可以放心持有。
type cacheMap struct {
	tree *btree.BTree
}

func newCacheMap() *cacheMap {
	return &cacheMap{tree: btree.New(32)}
}

func (m *cacheMap) find(key []byte) *cachedValue {
	item := m.tree.Get(&cachedValue{key: key})
	if item == nil {
		return nil
	}
	return item.(*cachedValue)
}

func (m *cacheMap) insert(cv *cachedValue) {
	m.tree.ReplaceOrInsert(cv)
}

// lowerBound 返回键 >= key 的第一个条目，没有则返回 nil。
func (m *cacheMap) lowerBound(key []byte) *cachedValue {
	var out *cachedValue
	m.tree.AscendGreaterOrEqual(&cachedValue{key: key}, func(item btree.Item) bool {
		out = item.(*cachedValue)
		return false
	})
	return out
}

// next 返回键严格大于 key 的第一个条目。
func (m *cacheMap) next(key []byte) *cachedValue {
	var out *cachedValue
	m.tree.AscendGreaterOrEqual(&cachedValue{key: key}, func(item btree.Item) bool {
		cv := item.(*cachedValue)
		if bytes.Equal(cv.key, key) {
			return true
		}
		out = cv
		return false
	})
	return out
}

// prev 返回键严格小于 key 的最后一个条目。
func (m *cacheMap) prev(key []byte) *cachedValue {
	var out *cachedValue
	m.tree.DescendLessOrEqual(&cachedValue{key: key}, func(item btree.Item) bool {
		cv := item.(*cachedValue)
		if bytes.Equal(cv.key, key) {
			return true
		}
		out = cv
		return false
	})
	return out
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// valuesEqual 比较两个可空值：nil 只和 nil 相等。
func valuesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}
