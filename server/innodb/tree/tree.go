package tree

import (
	"github.com/google/btree"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
)

// CompareFunc 元素的三路比较
type CompareFunc func(a, b []byte) int

// TreeFlag 树的行为标志
type TreeFlag uint8

const (
	// NoDups 插入已存在的元素时返回失败而不是计数加一
	NoDups TreeFlag = 1 << iota
)

// WalkOrder 遍历方向
type WalkOrder int

const (
	LeftRootRight WalkOrder = iota
	RightRootLeft
)

// elementOverhead 每个元素除键之外的估算开销
const elementOverhead = 48

// Element 树中的一个元素，Count 为重复插入的次数
type Element struct {
	Key   []byte
	Count uint32

	tree *Tree
}

func (e *Element) Less(than btree.Item) bool {
	return e.tree.cmp(e.Key, than.(*Element).Key) < 0
}

// Tree 有序集合，重复元素计数；设置了内存上限时，超出后插入失败
type Tree struct {
	bt        *btree.BTree
	cmp       CompareFunc
	flag      TreeFlag
	memLimit  int64
	allocated int64
	// probe 查找时复用的比较元素
	probe Element
}

func NewTree(cmp CompareFunc, memLimit int64, flag TreeFlag) *Tree {
	t := &Tree{bt: btree.New(32), cmp: cmp, flag: flag, memLimit: memLimit}
	t.probe.tree = t
	return t
}

func (t *Tree) key(k []byte) *Element {
	t.probe.Key = k
	return &t.probe
}

// ElementsInTree 不同元素的个数
func (t *Tree) ElementsInTree() int {
	return t.bt.Len()
}

// Allocated 已使用的估算内存
func (t *Tree) Allocated() int64 {
	return t.allocated
}

// Full 下一次插入新元素是否会超出内存上限
func (t *Tree) Full(keySize int) bool {
	return t.memLimit > 0 && t.bt.Len() > 0 &&
		t.allocated+int64(keySize+elementOverhead) > t.memLimit
}

// Insert 插入一个元素；元素已存在时计数加一，NoDups 下返回 nil；
// 内存不足时返回 nil
func (t *Tree) Insert(key []byte) *Element {
	if item := t.bt.Get(t.key(key)); item != nil {
		e := item.(*Element)
		if t.flag&NoDups != 0 {
			return nil
		}
		e.Count++
		return e
	}
	if t.Full(len(key)) {
		return nil
	}
	e := &Element{Key: append([]byte(nil), key...), Count: 1, tree: t}
	t.bt.ReplaceOrInsert(e)
	t.allocated += int64(len(key) + elementOverhead)
	return e
}

// Delete 删除元素，不存在时返回 false
func (t *Tree) Delete(key []byte) bool {
	item := t.bt.Delete(t.key(key))
	if item == nil {
		return false
	}
	t.allocated -= int64(len(item.(*Element).Key) + elementOverhead)
	return true
}

// Search 精确查找
func (t *Tree) Search(key []byte) *Element {
	if item := t.bt.Get(t.key(key)); item != nil {
		return item.(*Element)
	}
	return nil
}

// SearchKey 按 flag 定位元素，支持 KEY_EXACT、KEY_OR_NEXT、KEY_OR_PREV、AFTER_KEY、BEFORE_KEY
func (t *Tree) SearchKey(key []byte, flag basic.FindFlag) *Element {
	var found *Element
	probe := &Element{Key: key, tree: t}
	switch flag {
	case basic.HaReadKeyExact:
		return t.Search(key)
	case basic.HaReadKeyOrNext:
		t.bt.AscendGreaterOrEqual(probe, func(i btree.Item) bool {
			found = i.(*Element)
			return false
		})
	case basic.HaReadAfterKey:
		t.bt.AscendGreaterOrEqual(probe, func(i btree.Item) bool {
			e := i.(*Element)
			if t.cmp(e.Key, key) == 0 {
				return true
			}
			found = e
			return false
		})
	case basic.HaReadKeyOrPrev:
		t.bt.DescendLessOrEqual(probe, func(i btree.Item) bool {
			found = i.(*Element)
			return false
		})
	case basic.HaReadBeforeKey:
		t.bt.DescendLessOrEqual(probe, func(i btree.Item) bool {
			e := i.(*Element)
			if t.cmp(e.Key, key) == 0 {
				return true
			}
			found = e
			return false
		})
	}
	return found
}

// First 最小元素，空树返回 nil
func (t *Tree) First() *Element {
	if item := t.bt.Min(); item != nil {
		return item.(*Element)
	}
	return nil
}

// Last 最大元素，空树返回 nil
func (t *Tree) Last() *Element {
	if item := t.bt.Max(); item != nil {
		return item.(*Element)
	}
	return nil
}

// Walk 按 order 遍历所有元素，action 返回非 0 时停止并返回该值
func (t *Tree) Walk(action func(e *Element) int, order WalkOrder) int {
	res := 0
	iter := func(i btree.Item) bool {
		res = action(i.(*Element))
		return res == 0
	}
	if order == RightRootLeft {
		t.bt.Descend(iter)
	} else {
		t.bt.Ascend(iter)
	}
	return res
}

// Reset 清空树，比较函数与内存上限保持不变
func (t *Tree) Reset() {
	t.bt.Clear(false)
	t.allocated = 0
}
