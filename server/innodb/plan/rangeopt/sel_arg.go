package rangeopt

import (
	"strings"

	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/util"
)

// SelArgType 区间树节点的类型
type SelArgType uint8

const (
	// SelArgImpossible 条件恒假
	SelArgImpossible SelArgType = iota
	// SelArgMaybe 条件无法判断
	SelArgMaybe
	// SelArgMaybeKey 条件落在这个键列上，但值要到执行时才知道
	SelArgMaybeKey
	// SelArgKeyRange 普通区间
	SelArgKeyRange
)

var selArgTypeNames = [...]string{"IMPOSSIBLE", "MAYBE", "MAYBE_KEY", "KEY_RANGE"}

func (t SelArgType) String() string {
	if int(t) < len(selArgTypeNames) {
		return selArgTypeNames[t]
	}
	return "UNKNOWN"
}

type rbColor uint8

const (
	black rbColor = iota
	red
)

// SelArg 一个键列上的区间，同一键列的区间组成一棵红黑树，按区间起点排序且两两不相交。
// 节点之间还按中序串成双向链表 (Next/Prev)。NextKeyPart 指向下一个键列上的区间树，
// 表示落在本区间内的行还要满足的条件。
//
// Elements、UseCount 和 MaybeFlag 只在根节点上有意义。UseCount 是指向这棵树的
// 直接引用个数；大于 1 时任何修改都要先复制。
type SelArg struct {
	Type      SelArgType
	Part      int
	KeyPart   *metadata.KeyPartInfo
	MinFlag   basic.RangeFlag
	MaxFlag   basic.RangeFlag
	MinValue  []byte
	MaxValue  []byte
	MaybeFlag bool
	MaybeNull bool

	Elements int
	UseCount int

	NextKeyPart *SelArg

	Left, Right, Parent *SelArg
	Next, Prev          *SelArg

	color rbColor
	arena *MemRoot
}

// NewKeyRange 分配一个区间节点 [min, max]，值映像含 null 字节（若可空）
func (m *MemRoot) NewKeyRange(kp *metadata.KeyPartInfo, part int, min, max []byte, minFlag, maxFlag basic.RangeFlag) *SelArg {
	a := m.newSelArg()
	if a == nil {
		return nil
	}
	a.Type = SelArgKeyRange
	a.Part = part
	a.KeyPart = kp
	a.MinValue, a.MaxValue = min, max
	a.MinFlag, a.MaxFlag = minFlag, maxFlag
	a.MaybeNull = kp.MaybeNull()
	a.Elements = 1
	a.UseCount = 1
	return a
}

// newTyped 分配 IMPOSSIBLE/MAYBE_KEY 之类的非区间节点
func (m *MemRoot) newTyped(t SelArgType, part int) *SelArg {
	a := m.newSelArg()
	if a == nil {
		return nil
	}
	a.Type = t
	a.Part = part
	a.Elements = 1
	a.UseCount = 1
	return a
}

// nullImage NULL 值的键映像
func (m *MemRoot) nullImage(kp *metadata.KeyPartInfo) []byte {
	img := m.Alloc(kp.StoreLength)
	if img != nil {
		util.Fill(img, 0)
		img[0] = 1
	}
	return img
}

// selCmp 比较两个端点。
// 返回 0 表示相同，±1 表示 a 在 b 之前/之后，±2 表示两者取值相同
// 只是开闭不同，即恰好相邻
func selCmp(kp *metadata.KeyPartInfo, a, b []byte, aFlag, bFlag basic.RangeFlag) int {
	const unbounded = basic.NoMinRange | basic.NoMaxRange
	const near = basic.NearMin | basic.NearMax
	if (aFlag|bFlag)&unbounded != 0 {
		if aFlag&unbounded == bFlag&unbounded {
			return 0
		}
		switch {
		case aFlag&basic.NoMinRange != 0:
			return -1
		case aFlag&basic.NoMaxRange != 0:
			return 1
		case bFlag&basic.NoMinRange != 0:
			return 1
		}
		return -1
	}
	if kp.MaybeNull() {
		if a[0] != b[0] {
			if a[0] != 0 {
				return -1
			}
			return 1
		}
		if a[0] != 0 {
			goto end
		}
		a, b = a[1:], b[1:]
	}
	if c := keycodec.ComparePart(kp, a, b); c != 0 {
		if c < 0 {
			return -1
		}
		return 1
	}
end:
	if aFlag&near != 0 {
		if aFlag&near == bFlag&near {
			return 0
		}
		if bFlag&near == 0 {
			if aFlag&basic.NearMin != 0 {
				return 2
			}
			return -2
		}
		if aFlag&basic.NearMin != 0 {
			return 1
		}
		return -1
	}
	if bFlag&near != 0 {
		if bFlag&basic.NearMin != 0 {
			return -2
		}
		return 2
	}
	return 0
}

func (a *SelArg) cmpMinToMin(b *SelArg) int {
	return selCmp(a.KeyPart, a.MinValue, b.MinValue, a.MinFlag, b.MinFlag)
}

func (a *SelArg) cmpMinToMax(b *SelArg) int {
	return selCmp(a.KeyPart, a.MinValue, b.MaxValue, a.MinFlag, b.MaxFlag)
}

func (a *SelArg) cmpMaxToMax(b *SelArg) int {
	return selCmp(a.KeyPart, a.MaxValue, b.MaxValue, a.MaxFlag, b.MaxFlag)
}

func (a *SelArg) cmpMaxToMin(b *SelArg) int {
	return selCmp(a.KeyPart, a.MaxValue, b.MinValue, a.MaxFlag, b.MinFlag)
}

// afterMax 以 max 为界的右侧区间的起点标志
func afterMax(flag basic.RangeFlag) basic.RangeFlag {
	if flag&basic.NearMax != 0 {
		return 0
	}
	return basic.NearMin
}

// beforeMin 以 min 为界的左侧区间的终点标志
func beforeMin(flag basic.RangeFlag) basic.RangeFlag {
	if flag&basic.NearMin != 0 {
		return 0
	}
	return basic.NearMax
}

func (a *SelArg) newPiece(min []byte, minFlag basic.RangeFlag, max []byte, maxFlag basic.RangeFlag) *SelArg {
	n := a.arena.NewKeyRange(a.KeyPart, a.Part, min, max, minFlag, maxFlag)
	if n != nil {
		n.MaybeNull = a.MaybeNull
	}
	return n
}

// cloneAnd 两个相交区间的交集
func (a *SelArg) cloneAnd(b *SelArg) *SelArg {
	min, minFlag := b.MinValue, b.MinFlag
	if a.cmpMinToMin(b) >= 0 {
		min, minFlag = a.MinValue, a.MinFlag
	}
	max, maxFlag := b.MaxValue, b.MaxFlag
	if a.cmpMaxToMax(b) <= 0 {
		max, maxFlag = a.MaxValue, a.MaxFlag
	}
	return a.newPiece(min, minFlag, max, maxFlag)
}

// cloneFirst 从 a 的起点到 b 的起点（不含）的区间
func (a *SelArg) cloneFirst(b *SelArg) *SelArg {
	return a.newPiece(a.MinValue, a.MinFlag, b.MinValue, beforeMin(b.MinFlag))
}

// isSame 端点与标志完全相同
func (a *SelArg) isSame(b *SelArg) bool {
	if a.Part != b.Part || a.MinFlag != b.MinFlag || a.MaxFlag != b.MaxFlag {
		return false
	}
	return a.cmpMinToMin(b) == 0 && a.cmpMaxToMax(b) == 0
}

func (a *SelArg) isPoint() bool {
	return a.Type == SelArgKeyRange && a.MinFlag == 0 && a.MaxFlag == 0 && a.cmpMinToMax(a) == 0
}

func (a *SelArg) first() *SelArg {
	n := a
	for n.Left != nil {
		n = n.Left
	}
	return n
}

func (a *SelArg) last() *SelArg {
	n := a
	for n.Right != nil {
		n = n.Right
	}
	return n
}

// First 最左的区间
func (a *SelArg) First() *SelArg { return a.first() }

// Last 最右的区间
func (a *SelArg) Last() *SelArg { return a.last() }

// findRange 起点不大于 key 起点的最后一个区间，没有返回 nil
func (a *SelArg) findRange(key *SelArg) *SelArg {
	var found *SelArg
	for e := a; e != nil; {
		c := e.cmpMinToMin(key)
		if c == 0 {
			return e
		}
		if c < 0 {
			found = e
			e = e.Right
		} else {
			e = e.Left
		}
	}
	return found
}

func (a *SelArg) copyRootInfo(from *SelArg) {
	a.UseCount = from.UseCount
	a.Elements = from.Elements
	a.MaybeFlag = from.MaybeFlag
}

func colorOf(n *SelArg) rbColor {
	if n == nil {
		return black
	}
	return n.color
}

func leftRotate(root, x *SelArg) *SelArg {
	y := x.Right
	x.Right = y.Left
	if y.Left != nil {
		y.Left.Parent = x
	}
	y.Parent = x.Parent
	switch {
	case x.Parent == nil:
		root = y
	case x == x.Parent.Left:
		x.Parent.Left = y
	default:
		x.Parent.Right = y
	}
	y.Left = x
	x.Parent = y
	return root
}

func rightRotate(root, x *SelArg) *SelArg {
	y := x.Left
	x.Left = y.Right
	if y.Right != nil {
		y.Right.Parent = x
	}
	y.Parent = x.Parent
	switch {
	case x.Parent == nil:
		root = y
	case x == x.Parent.Right:
		x.Parent.Right = y
	default:
		x.Parent.Left = y
	}
	y.Right = x
	x.Parent = y
	return root
}

// insert 插入一个区间，返回新的根。key 不能与已有区间相交
func (a *SelArg) insert(key *SelArg) *SelArg {
	var parent *SelArg
	left := false
	for e := a; e != nil; {
		parent = e
		if key.cmpMinToMin(e) > 0 {
			e, left = e.Right, false
		} else {
			e, left = e.Left, true
		}
	}
	key.Parent = parent
	key.Left, key.Right = nil, nil
	if left {
		parent.Left = key
		key.Next = parent
		if key.Prev = parent.Prev; key.Prev != nil {
			key.Prev.Next = key
		}
		parent.Prev = key
	} else {
		parent.Right = key
		if key.Next = parent.Next; key.Next != nil {
			key.Next.Prev = key
		}
		key.Prev = parent
		parent.Next = key
	}
	root := rbInsert(a, key)
	root.copyRootInfo(a)
	root.Elements = a.Elements + 1
	return root
}

func rbInsert(root, x *SelArg) *SelArg {
	x.color = red
	for x != root && x.Parent.color == red {
		p := x.Parent
		g := p.Parent
		if p == g.Left {
			y := g.Right
			if colorOf(y) == red {
				p.color, y.color, g.color = black, black, red
				x = g
				continue
			}
			if x == p.Right {
				x = p
				root = leftRotate(root, x)
				p = x.Parent
			}
			p.color, g.color = black, red
			root = rightRotate(root, g)
		} else {
			y := g.Left
			if colorOf(y) == red {
				p.color, y.color, g.color = black, black, red
				x = g
				continue
			}
			if x == p.Left {
				x = p
				root = rightRotate(root, x)
				p = x.Parent
			}
			p.color, g.color = black, red
			root = leftRotate(root, g)
		}
	}
	root.color = black
	return root
}

// treeDelete 删除一个区间并释放它的 NextKeyPart，返回新的根，树空时返回 nil
func (a *SelArg) treeDelete(key *SelArg) *SelArg {
	root := a
	info := *a
	root.Parent = nil

	if key.Prev != nil {
		key.Prev.Next = key.Next
	}
	if key.Next != nil {
		key.Next.Prev = key.Prev
	}
	release(key.NextKeyPart)
	key.NextKeyPart = nil

	replace := func(old, n *SelArg) {
		switch {
		case old.Parent == nil:
			root = n
		case old == old.Parent.Left:
			old.Parent.Left = n
		default:
			old.Parent.Right = n
		}
	}

	var x, xParent *SelArg
	removed := key.color
	switch {
	case key.Left == nil:
		x, xParent = key.Right, key.Parent
		replace(key, x)
		if x != nil {
			x.Parent = xParent
		}
	case key.Right == nil:
		x, xParent = key.Left, key.Parent
		replace(key, x)
		x.Parent = xParent
	default:
		// 后继没有左孩子，摘下它放到 key 的位置
		tmp := key.Right.first()
		removed = tmp.color
		x, xParent = tmp.Right, tmp.Parent
		if xParent == key {
			xParent = tmp
		} else {
			xParent.Left = x
			if x != nil {
				x.Parent = xParent
			}
			tmp.Right = key.Right
			tmp.Right.Parent = tmp
		}
		replace(key, tmp)
		tmp.Parent = key.Parent
		tmp.Left = key.Left
		tmp.Left.Parent = tmp
		tmp.color = key.color
	}
	key.Left, key.Right, key.Parent, key.Next, key.Prev = nil, nil, nil, nil, nil

	if root == nil {
		return nil
	}
	if removed == black {
		root = rbDeleteFixup(root, x, xParent)
	}
	root.copyRootInfo(&info)
	root.Elements = info.Elements - 1
	return root
}

func rbDeleteFixup(root, x, parent *SelArg) *SelArg {
	for x != root && colorOf(x) == black {
		if x == parent.Left {
			w := parent.Right
			if w.color == red {
				w.color, parent.color = black, red
				root = leftRotate(root, parent)
				w = parent.Right
			}
			if colorOf(w.Left) == black && colorOf(w.Right) == black {
				w.color = red
				x, parent = parent, parent.Parent
				continue
			}
			if colorOf(w.Right) == black {
				w.Left.color, w.color = black, red
				root = rightRotate(root, w)
				w = parent.Right
			}
			w.color, parent.color = parent.color, black
			w.Right.color = black
			root = leftRotate(root, parent)
			x = root
		} else {
			w := parent.Left
			if w.color == red {
				w.color, parent.color = black, red
				root = rightRotate(root, parent)
				w = parent.Left
			}
			if colorOf(w.Right) == black && colorOf(w.Left) == black {
				w.color = red
				x, parent = parent, parent.Parent
				continue
			}
			if colorOf(w.Left) == black {
				w.Right.color, w.color = black, red
				root = leftRotate(root, w)
				w = parent.Left
			}
			w.color, parent.color = parent.color, black
			w.Left.color = black
			root = rightRotate(root, parent)
			x = root
		}
	}
	if x != nil {
		x.color = black
	}
	return root
}

// acquire 增加一个引用
func acquire(a *SelArg) *SelArg {
	if a != nil {
		a.UseCount++
	}
	return a
}

// release 释放一个引用，最后一个引用释放时连带释放各区间持有的 NextKeyPart。
// 节点内存本身随 MemRoot 整体回收
func release(a *SelArg) {
	if a == nil {
		return
	}
	a.UseCount--
	if a.UseCount > 0 {
		return
	}
	for n := a.first(); n != nil; n = n.Next {
		release(n.NextKeyPart)
	}
}

// exclusive 取得可以修改的树：共享的树先复制一份，并交还原来的引用
func exclusive(a *SelArg) *SelArg {
	if a.UseCount <= 1 {
		return a
	}
	c := a.cloneTree()
	a.UseCount--
	return c
}

// cloneTree 复制整棵树的结构，各区间的 NextKeyPart 共享并各加一个引用
func (a *SelArg) cloneTree() *SelArg {
	var head SelArg
	prev := &head
	root := a.clone(nil, &prev)
	if root == nil {
		return nil
	}
	prev.Next = nil
	if head.Next != nil {
		head.Next.Prev = nil
	}
	root.UseCount = 1
	root.MaybeFlag = a.MaybeFlag
	return root
}

func (a *SelArg) clone(parent *SelArg, prev **SelArg) *SelArg {
	n := a.arena.newSelArg()
	if n == nil {
		return nil
	}
	arena := n.arena
	*n = SelArg{
		Type:      a.Type,
		Part:      a.Part,
		KeyPart:   a.KeyPart,
		MinFlag:   a.MinFlag,
		MaxFlag:   a.MaxFlag,
		MinValue:  a.MinValue,
		MaxValue:  a.MaxValue,
		MaybeNull: a.MaybeNull,
		Elements:  a.Elements,
		Parent:    parent,
		color:     a.color,
		arena:     arena,
	}
	n.NextKeyPart = acquire(a.NextKeyPart)
	if a.Left != nil {
		if n.Left = a.Left.clone(n, prev); n.Left == nil {
			return nil
		}
	}
	n.Prev = *prev
	(*prev).Next = n
	*prev = n
	if a.Right != nil {
		if n.Right = a.Right.clone(n, prev); n.Right == nil {
			return nil
		}
	}
	return n
}

// eqTree 两棵树表示的条件完全相同
func eqTree(a, b *SelArg) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Type != b.Type || a.Part != b.Part || a.Elements != b.Elements {
		return false
	}
	if a.Type != SelArgKeyRange {
		return eqTree(a.NextKeyPart, b.NextKeyPart)
	}
	x, y := a.first(), b.first()
	for ; x != nil && y != nil; x, y = x.Next, y.Next {
		if !x.isSame(y) || !eqTree(x.NextKeyPart, y.NextKeyPart) {
			return false
		}
	}
	return x == nil && y == nil
}

// Size 树中区间的个数
func (a *SelArg) Size() int {
	if a == nil {
		return 0
	}
	return a.Elements
}

func (a *SelArg) name() string {
	if a.KeyPart == nil {
		return "?"
	}
	return a.KeyPart.Field.Name
}

func (a *SelArg) format(img []byte) string {
	return keycodec.FormatPart(a.KeyPart, img)
}

// intervalString 单个区间的文本形式，如 "3 <= b < 5"
func (a *SelArg) intervalString() string {
	name := a.name()
	if a.isPoint() {
		if a.MaybeNull && a.MinValue[0] != 0 {
			return name + " IS NULL"
		}
		return name + " = " + a.format(a.MinValue)
	}
	var sb strings.Builder
	if a.MinFlag&basic.NoMinRange == 0 {
		sb.WriteString(a.format(a.MinValue))
		if a.MinFlag&basic.NearMin != 0 {
			sb.WriteString(" < ")
		} else {
			sb.WriteString(" <= ")
		}
	}
	sb.WriteString(name)
	if a.MaxFlag&basic.NoMaxRange == 0 {
		if a.MaxFlag&basic.NearMax != 0 {
			sb.WriteString(" < ")
		} else {
			sb.WriteString(" <= ")
		}
		sb.WriteString(a.format(a.MaxValue))
	}
	return sb.String()
}

// String 整棵树的文本形式，同一层的区间用 OR 连接
func (a *SelArg) String() string {
	if a == nil {
		return "ALWAYS"
	}
	if a.Type != SelArgKeyRange {
		s := a.Type.String()
		if a.NextKeyPart != nil {
			s += " AND " + a.NextKeyPart.nested()
		}
		return s
	}
	var items []string
	for n := a.first(); n != nil; n = n.Next {
		s := n.intervalString()
		if n.NextKeyPart != nil {
			s += " AND " + n.NextKeyPart.nested()
		}
		items = append(items, s)
	}
	return strings.Join(items, " OR ")
}

func (a *SelArg) nested() string {
	if a.Elements > 1 {
		return "(" + a.String() + ")"
	}
	return a.String()
}
