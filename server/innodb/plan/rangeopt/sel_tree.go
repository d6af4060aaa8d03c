package rangeopt

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// SelTreeType 条件树的类型
type SelTreeType uint8

const (
	// TreeImpossible 没有行满足条件
	TreeImpossible SelTreeType = iota
	// TreeAlways 条件不限制任何索引
	TreeAlways
	// TreeMaybe 条件依赖运行时的值，无法用于范围扫描
	TreeMaybe
	// TreeKey 每个索引一棵区间树
	TreeKey
	// TreeKeySmaller 区间树覆盖的行多于实际满足条件的行
	TreeKeySmaller
)

var selTreeTypeNames = [...]string{"IMPOSSIBLE", "ALWAYS", "MAYBE", "KEY", "KEY_SMALLER"}

func (t SelTreeType) String() string {
	if int(t) < len(selTreeTypeNames) {
		return selTreeTypeNames[t]
	}
	return "UNKNOWN"
}

// SelTree 一个条件在各索引上的区间树。Keys 按表的索引编号排列，
// KeysMap 记录哪些索引有区间树。Merges 是无法合并进单个索引时的 index merge 候选，
// 它们之间是 AND 关系
type SelTree struct {
	Type    SelTreeType
	Keys    []*SelArg
	KeysMap *roaring.Bitmap
	Merges  []*SelImerge
	// LooseMerge 合并两个 index merge 列表时丢弃过候选，结果范围比条件宽
	LooseMerge bool
}

// NewSelTree 创建一棵没有任何区间的树
func NewSelTree(t SelTreeType, keys int) *SelTree {
	return &SelTree{Type: t, Keys: make([]*SelArg, keys), KeysMap: roaring.New()}
}

func (t *SelTree) setKey(i int, a *SelArg) {
	t.Keys[i] = a
	if a != nil {
		t.KeysMap.Add(uint32(i))
	} else {
		t.KeysMap.Remove(uint32(i))
	}
}

// rangeType 能否直接驱动范围扫描
func (t *SelTree) rangeType() bool {
	return t.Type == TreeKey || t.Type == TreeKeySmaller
}

// release 释放树持有的全部区间树引用
func (t *SelTree) release() {
	if t == nil {
		return
	}
	for i, k := range t.Keys {
		release(k)
		t.Keys[i] = nil
	}
	t.KeysMap.Clear()
	for _, im := range t.Merges {
		im.release()
	}
	t.Merges = nil
}

// clone 浅复制：区间树共享并各加一个引用
func (t *SelTree) clone() *SelTree {
	c := &SelTree{
		Type:       t.Type,
		Keys:       make([]*SelArg, len(t.Keys)),
		KeysMap:    t.KeysMap.Clone(),
		LooseMerge: t.LooseMerge,
	}
	for i, k := range t.Keys {
		c.Keys[i] = acquire(k)
	}
	for _, im := range t.Merges {
		c.Merges = append(c.Merges, im.clone())
	}
	return c
}

func (t *SelTree) String() string {
	if t == nil {
		return "ALWAYS"
	}
	if !t.rangeType() {
		return t.Type.String()
	}
	var items []string
	it := t.KeysMap.Iterator()
	for it.HasNext() {
		i := it.Next()
		items = append(items, fmt.Sprintf("key%d: %s", i, t.Keys[i]))
	}
	for _, im := range t.Merges {
		items = append(items, im.String())
	}
	return strings.Join(items, "; ")
}

// TreeAnd 两棵条件树的交，参数被消耗
func (p *Param) TreeAnd(tree1, tree2 *SelTree) *SelTree {
	if tree1 == nil {
		return tree2
	}
	if tree2 == nil {
		return tree1
	}
	if tree1.Type == TreeImpossible || tree2.Type == TreeAlways {
		tree2.release()
		return tree1
	}
	if tree2.Type == TreeImpossible || tree1.Type == TreeAlways {
		tree1.release()
		return tree2
	}
	if tree1.Type == TreeMaybe {
		if tree2.Type == TreeKey {
			tree2.Type = TreeKeySmaller
		}
		return tree2
	}
	if tree2.Type == TreeMaybe {
		tree1.Type = TreeKeySmaller
		return tree1
	}

	result := roaring.New()
	for i := range tree1.Keys {
		k1, k2 := tree1.Keys[i], tree2.Keys[i]
		tree2.Keys[i] = nil
		if k1 == nil && k2 == nil {
			continue
		}
		k := KeyAnd(k1, k2)
		tree1.Keys[i] = k
		if k != nil && k.Type == SelArgImpossible {
			tree1.Type = TreeImpossible
			tree2.release()
			tree1.release()
			return tree1
		}
		if k != nil {
			result.Add(uint32(i))
		}
	}
	tree1.KeysMap = result
	tree1.LooseMerge = tree1.LooseMerge || tree2.LooseMerge
	if tree2.Type == TreeKeySmaller {
		tree1.Type = TreeKeySmaller
	}
	if !result.IsEmpty() {
		for _, im := range tree1.Merges {
			im.release()
		}
		tree1.Merges = nil
		tree2.release()
		return tree1
	}
	tree1.Merges = append(tree1.Merges, tree2.Merges...)
	tree2.Merges = nil
	return tree1
}

// canBeOred 两棵树至少有一个索引的区间树从同一个键列开始
func canBeOred(tree1, tree2 *SelTree) bool {
	common := roaring.And(tree1.KeysMap, tree2.KeysMap)
	it := common.Iterator()
	for it.HasNext() {
		i := it.Next()
		if tree1.Keys[i].Part == tree2.Keys[i].Part {
			return true
		}
	}
	return false
}

// removeNonrangeTrees 去掉不从第一个键列开始的区间树，返回 true 表示一棵都不剩
func removeNonrangeTrees(tree *SelTree) bool {
	keep := false
	for i, k := range tree.Keys {
		if k == nil {
			continue
		}
		if k.Part != 0 {
			release(k)
			tree.setKey(i, nil)
			continue
		}
		keep = true
	}
	return !keep
}

// TreeOr 两棵条件树的并，参数被消耗。结果为 nil 的情况都换成 ALWAYS
func (p *Param) TreeOr(tree1, tree2 *SelTree) *SelTree {
	if tree1 == nil || tree2 == nil {
		tree1.release()
		tree2.release()
		return p.newTree(TreeAlways)
	}
	if tree1.Type == TreeImpossible || tree2.Type == TreeAlways {
		tree1.release()
		return tree2
	}
	if tree2.Type == TreeImpossible || tree1.Type == TreeAlways {
		tree2.release()
		return tree1
	}
	if tree1.Type == TreeMaybe {
		tree2.release()
		return tree1
	}
	if tree2.Type == TreeMaybe {
		tree1.release()
		return tree2
	}

	if canBeOred(tree1, tree2) {
		result := roaring.New()
		for i := range tree1.Keys {
			k := KeyOr(tree1.Keys[i], tree2.Keys[i])
			tree1.Keys[i], tree2.Keys[i] = k, nil
			if k != nil {
				result.Add(uint32(i))
			}
		}
		tree2.release()
		tree1.Merges, tree1.KeysMap = nil, result
		if result.IsEmpty() {
			return p.newTree(TreeAlways)
		}
		return tree1
	}

	// 两边不能在同一个索引上合并，只能走 index merge
	switch {
	case len(tree1.Merges) == 0 && len(tree2.Merges) == 0:
		if p.Switch.RemoveJumpScans {
			noTrees := removeNonrangeTrees(tree1)
			noTrees = removeNonrangeTrees(tree2) || noTrees
			if noTrees {
				tree1.release()
				tree2.release()
				return p.newTree(TreeAlways)
			}
		}
		result := p.newTree(tree1.Type)
		result.Merges = []*SelImerge{{Trees: []*SelTree{tree1, tree2}}}
		return result
	case len(tree1.Merges) > 0 && len(tree2.Merges) > 0:
		merges, always, loose := p.imergeListOrList(tree1.Merges, tree2.Merges)
		tree1.Merges, tree2.Merges = merges, nil
		tree2.release()
		if always {
			tree1.release()
			return p.newTree(TreeAlways)
		}
		tree1.LooseMerge = tree1.LooseMerge || loose
		if loose {
			p.debugf("index merge OR kept only the first conjunct of each side")
		}
		return tree1
	default:
		if len(tree1.Merges) == 0 {
			tree1, tree2 = tree2, tree1
		}
		if p.Switch.RemoveJumpScans && removeNonrangeTrees(tree2) {
			tree1.release()
			tree2.release()
			return p.newTree(TreeAlways)
		}
		if tree1.Merges = p.imergeListOrTree(tree1.Merges, tree2); len(tree1.Merges) == 0 {
			tree1.release()
			return p.newTree(TreeAlways)
		}
		return tree1
	}
}
