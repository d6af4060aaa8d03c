package rangeopt

import (
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
)

// KeyOr 同一键列上两棵区间树的并。两个参数各消耗一个引用，返回的树归调用方。
// nil 表示该键列上没有限制，与任何树的并仍然是 nil
func KeyOr(key1, key2 *SelArg) *SelArg {
	if key1 == nil {
		release(key2)
		return nil
	}
	if key2 == nil {
		release(key1)
		return nil
	}
	if key1 == key2 {
		release(key2)
		return key1
	}
	if key1.Type == SelArgImpossible {
		release(key1)
		return key2
	}
	if key2.Type == SelArgImpossible {
		release(key2)
		return key1
	}
	if key1.Part != key2.Part {
		release(key1)
		release(key2)
		return nil
	}
	// MAYBE_KEY 覆盖的范围只会更大
	if key1.Type == SelArgMaybeKey {
		release(key2)
		return key1
	}
	if key2.Type == SelArgMaybeKey {
		release(key1)
		return key2
	}

	if key1.UseCount > 1 && (key2.UseCount <= 1 || key1.Elements > key2.Elements) {
		key1, key2 = key2, key1
	}
	if key1 = exclusive(key1); key1 == nil {
		release(key2)
		return nil
	}
	key1.MaybeFlag = key1.MaybeFlag || key2.MaybeFlag

	for n := key2.first(); n != nil; n = n.Next {
		k := n.newPiece(n.MinValue, n.MinFlag, n.MaxValue, n.MaxFlag)
		if k == nil {
			release(key1)
			release(key2)
			return nil
		}
		k.NextKeyPart = acquire(n.NextKeyPart)
		if key1 = key1.mergePiece(k); key1 == nil {
			release(key2)
			return nil
		}
	}
	release(key2)

	key1 = key1.coalesce()
	if key1.Elements == 1 && key1.NextKeyPart == nil &&
		key1.MinFlag&basic.NoMinRange != 0 && key1.MaxFlag&basic.NoMaxRange != 0 {
		maybe, part, arena := key1.MaybeFlag, key1.Part, key1.arena
		release(key1)
		if maybe {
			return arena.newTyped(SelArgMaybeKey, part)
		}
		return nil
	}
	return key1
}

// mergePiece 把区间 k 并入以 a 为根的独占树，返回新的根。
// k 与它的 NextKeyPart 引用一并被消耗；内存不足时释放整棵树并返回 nil
func (a *SelArg) mergePiece(k *SelArg) *SelArg {
	root := a
	for {
		t := root.findRange(k)
		if t == nil {
			t = root.first()
		} else if t.cmpMaxToMin(k) < 0 {
			if t = t.Next; t == nil {
				return root.insert(k)
			}
		}
		// t 是第一个可能与 k 相交的区间
		if k.cmpMaxToMin(t) < 0 {
			return root.insert(k)
		}

		switch c := k.cmpMinToMin(t); {
		case c < 0:
			left := k.cloneFirst(t)
			if left == nil {
				release(k.NextKeyPart)
				release(root)
				return nil
			}
			left.NextKeyPart = acquire(k.NextKeyPart)
			root = root.insert(left)
			k.MinValue, k.MinFlag = t.MinValue, t.MinFlag
		case c > 0:
			left := t.cloneFirst(k)
			if left == nil {
				release(k.NextKeyPart)
				release(root)
				return nil
			}
			left.NextKeyPart = acquire(t.NextKeyPart)
			t.MinValue, t.MinFlag = k.MinValue, k.MinFlag
			root = root.insert(left)
		}

		// 现在 t 与 k 起点相同
		if c := t.cmpMaxToMax(k); c <= 0 {
			t.NextKeyPart = KeyOr(t.NextKeyPart, acquire(k.NextKeyPart))
			if c == 0 {
				release(k.NextKeyPart)
				return root
			}
			k.MinValue, k.MinFlag = t.MaxValue, afterMax(t.MaxFlag)
			continue
		}

		right := t.newPiece(k.MaxValue, afterMax(k.MaxFlag), t.MaxValue, t.MaxFlag)
		if right == nil {
			release(k.NextKeyPart)
			release(root)
			return nil
		}
		right.NextKeyPart = acquire(t.NextKeyPart)
		t.MaxValue, t.MaxFlag = k.MaxValue, k.MaxFlag
		root = root.insert(right)
		t.NextKeyPart = KeyOr(t.NextKeyPart, k.NextKeyPart)
		return root
	}
}

// coalesce 合并首尾相接且 NextKeyPart 相同的相邻区间
func (a *SelArg) coalesce() *SelArg {
	root := a
	for n := root.first(); n != nil && n.Next != nil; {
		nx := n.Next
		if n.cmpMaxToMin(nx) == -2 && eqTree(n.NextKeyPart, nx.NextKeyPart) {
			n.MaxValue, n.MaxFlag = nx.MaxValue, nx.MaxFlag
			root = root.treeDelete(nx)
			continue
		}
		n = nx
	}
	return root
}
