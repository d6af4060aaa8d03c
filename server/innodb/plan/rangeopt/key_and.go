package rangeopt

// KeyAnd 两棵区间树的交，参数各消耗一个引用。
// 键列相同时逐个求区间交集；键列不同时把键列靠后的树挂到另一棵树每个区间的 NextKeyPart 上。
// nil 表示没有限制；结果为空时返回 IMPOSSIBLE 节点
func KeyAnd(key1, key2 *SelArg) *SelArg {
	if key1 == nil {
		return key2
	}
	if key2 == nil {
		return key1
	}
	if key1 == key2 {
		release(key2)
		return key1
	}
	if key1.Type == SelArgImpossible {
		release(key2)
		return key1
	}
	if key2.Type == SelArgImpossible {
		release(key1)
		return key2
	}
	if key1.Part != key2.Part {
		if key1.Part > key2.Part {
			key1, key2 = key2, key1
		}
		if key1 = exclusive(key1); key1 == nil {
			return key2
		}
		return andAllKeys(key1, key2)
	}

	if key1.Type == SelArgMaybeKey {
		key1, key2 = key2, key1
	}
	// MAYBE_KEY 只会让结果范围变小，保留另一边的区间
	if key2.Type == SelArgMaybeKey {
		if key1 = exclusive(key1); key1 == nil {
			return key2
		}
		if key1.Type == SelArgMaybeKey {
			key1.NextKeyPart = KeyAnd(key1.NextKeyPart, acquire(key2.NextKeyPart))
			release(key2)
			return key1
		}
		key1.MaybeFlag = true
		if key2.NextKeyPart != nil {
			next := acquire(key2.NextKeyPart)
			release(key2)
			return andAllKeys(key1, next)
		}
		release(key2)
		return key1
	}

	var newTree *SelArg
	e1, e2 := key1.first(), key2.first()
	for e1 != nil && e2 != nil {
		if e1.cmpMinToMin(e2) < 0 {
			if getRange(&e1, &e2, key1) {
				continue
			}
		} else if getRange(&e2, &e1, key2) {
			continue
		}
		next := KeyAnd(acquire(e1.NextKeyPart), acquire(e2.NextKeyPart))
		if next == nil || next.Type != SelArgImpossible {
			n := e1.cloneAnd(e2)
			if n == nil {
				release(next)
				release(newTree)
				release(key1)
				release(key2)
				return nil
			}
			n.NextKeyPart = next
			if newTree == nil {
				newTree = n
				newTree.MaybeFlag = key1.MaybeFlag && key2.MaybeFlag
			} else {
				newTree = newTree.insert(n)
			}
		} else {
			release(next)
		}
		if e1.cmpMaxToMax(e2) < 0 {
			e1 = e1.Next
		} else {
			e2 = e2.Next
		}
	}
	part, arena := key1.Part, key1.arena
	release(key1)
	release(key2)
	if newTree == nil {
		return arena.newTyped(SelArgImpossible, part)
	}
	return newTree
}

// getRange 在 root1 中找与 *e2 相交的区间放入 *e1。
// 返回 true 表示本轮没有交集，调用方用更新后的游标继续
func getRange(e1, e2 **SelArg, root1 *SelArg) bool {
	*e1 = root1.findRange(*e2)
	if (*e1).cmpMaxToMin(*e2) < 0 {
		if *e1 = (*e1).Next; *e1 == nil {
			return true
		}
		if (*e1).cmpMinToMax(*e2) > 0 {
			*e2 = (*e2).Next
			return true
		}
	}
	return false
}

// andAllKeys key1 独占且键列在 key2 之前：key2 与 key1 每个区间的 NextKeyPart 求交
func andAllKeys(key1, key2 *SelArg) *SelArg {
	part, arena := key1.Part, key1.arena
	for n := key1.first(); n != nil; {
		nx := n.Next
		if n.NextKeyPart == nil {
			n.NextKeyPart = acquire(key2)
			n = nx
			continue
		}
		tmp := KeyAnd(n.NextKeyPart, acquire(key2))
		if tmp != nil && tmp.Type == SelArgImpossible {
			release(tmp)
			n.NextKeyPart = nil
			if key1 = key1.treeDelete(n); key1 == nil {
				break
			}
		} else {
			n.NextKeyPart = tmp
		}
		n = nx
	}
	release(key2)
	if key1 == nil {
		return arena.newTyped(SelArgImpossible, part)
	}
	return key1
}
