package deliverability

import (
	"container/list"
	"sync"
)

// 文档注释：调用方私有的判定结果缓存（LRU）
// 背景：同一请求内商品列表、购物车会对相同 (SKU, 网点) 重复判定；缓存只在请求或批次内有效。
// 约束：不得作为进程级共享缓存使用，否则不同顾客之间会读到过期结果；容量不足时淘汰最久未用项。
type Memo struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[memoKey]*list.Element
}

type memoKey struct{ sku, source string }

type memoEntry struct {
	k memoKey
	v bool
}

func NewMemo(capacity int) *Memo {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memo{cap: capacity, lst: list.New(), dict: make(map[memoKey]*list.Element)}
}

func (c *Memo) Get(sku, source string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[memoKey{sku, source}]; ok {
		c.lst.MoveToFront(e)
		return e.Value.(memoEntry).v, true
	}
	return false, false
}

func (c *Memo) Set(sku, source string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := memoKey{sku, source}
	if e, ok := c.dict[k]; ok {
		e.Value = memoEntry{k: k, v: v}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(memoEntry{k: k, v: v})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(memoEntry).k)
		c.lst.Remove(back)
	}
}

func (c *Memo) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
