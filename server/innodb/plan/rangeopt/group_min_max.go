package rangeopt

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// AggFunc 需要计算的聚合
type AggFunc uint8

const (
	AggMin AggFunc = 1 << iota
	AggMax
)

// GroupMinMaxQuery SELECT g1, .., MIN(arg), MAX(arg) FROM t WHERE cond GROUP BY g1, ..
// Arg 为空表示只有 GROUP BY 或 DISTINCT
type GroupMinMaxQuery struct {
	GroupBy []string
	Arg     string
	Funcs   AggFunc
}

// GroupMinMaxPlan 按组跳跃读取索引的计划。
// 键的前 GroupKeyParts 列是分组列，之后 KeyInfixParts 列由等值条件固定，
// 再之后是 MIN/MAX 的参数列
type GroupMinMaxPlan struct {
	Index          int
	GroupKeyParts  int
	GroupPrefixLen int
	KeyInfix       []byte
	KeyInfixParts  int
	// MinMaxArgPart 参数列在索引中的位置，没有参数时为 -1
	MinMaxArgPart int
	MinMaxArgLen  int
	HaveMin       bool
	HaveMax       bool
	// MinMaxRanges 参数列上的区间，端点只含参数列的映像
	MinMaxRanges []*QuickRange
	// PrefixRanges 分组列上的区间，用来跳过不满足条件的组
	PrefixRanges []*QuickRange
	// PrefixFilter 分组列上的条件，每组第一行上重新求值
	PrefixFilter Cond
	Groups       int64
	Cost         float64
}

// RealPrefixLen 分组前缀加上固定键列的长度
func (g *GroupMinMaxPlan) RealPrefixLen() int {
	return g.GroupPrefixLen + len(g.KeyInfix)
}

// RealKeyParts 分组列与固定键列的个数
func (g *GroupMinMaxPlan) RealKeyParts() int {
	return g.GroupKeyParts + g.KeyInfixParts
}

func (g *GroupMinMaxPlan) String(share *metadata.TableShare) string {
	key := share.Keys[g.Index]
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s groups=%d prefix=%d", key.Name, g.Groups, g.GroupKeyParts)
	if g.KeyInfixParts > 0 {
		fmt.Fprintf(&sb, " infix=(%s)", keycodec.Unpack(key.Parts[g.GroupKeyParts:], g.KeyInfix, len(g.KeyInfix)))
	}
	if g.MinMaxArgPart >= 0 {
		arg := key.Parts[g.MinMaxArgPart : g.MinMaxArgPart+1]
		var funcs []string
		if g.HaveMin {
			funcs = append(funcs, "min")
		}
		if g.HaveMax {
			funcs = append(funcs, "max")
		}
		fmt.Fprintf(&sb, " %s(%s)", strings.Join(funcs, "/"), arg[0].Field.Name)
		for _, r := range g.MinMaxRanges {
			sb.WriteString(" [" + r.String(arg) + "]")
		}
	}
	if len(g.PrefixRanges) > 0 {
		items := make([]string, 0, len(g.PrefixRanges))
		for _, r := range g.PrefixRanges {
			items = append(items, r.String(key.Parts))
		}
		sb.WriteString(" where " + strings.Join(items, " OR "))
	}
	return sb.String()
}

// singleField 条件只引用一列时返回该列，OR/AND 子树要求各分支引用同一列
func (p *Param) singleField(c Cond) *metadata.Field {
	switch x := c.(type) {
	case *CondOpaque:
		return nil
	case *CondAnd, *CondOr:
		var f *metadata.Field
		for _, child := range x.Children() {
			cf := p.singleField(child)
			if cf == nil || (f != nil && cf != f) {
				return nil
			}
			f = cf
		}
		return f
	}
	if name := leafColumn(c); name != "" {
		return p.Share.Field(name)
	}
	return nil
}

func andOf(conds []Cond) Cond {
	if len(conds) == 1 {
		return conds[0]
	}
	return And(conds...)
}

// minMaxRange 参数列上的一个区间；两端都无界时返回 nil
func minMaxRange(a *SelArg, argLen int) *QuickRange {
	if a.MinFlag&basic.NoMinRange != 0 && a.MaxFlag&basic.NoMaxRange != 0 {
		return nil
	}
	flag := a.MinFlag | a.MaxFlag
	if a.MinFlag&basic.NoMinRange == 0 && a.MaxFlag&basic.NoMaxRange == 0 {
		switch {
		case a.MaybeNull && a.MinValue[0] != 0 && a.MaxValue[0] != 0:
			flag = basic.NullRange
		case bytes.Equal(a.MinValue[:argLen], a.MaxValue[:argLen]):
			flag = basic.EqRange
		}
	}
	keypart := basic.MakeKeypartMap(a.Part)
	r := &QuickRange{Flag: flag, MinKeypartMap: keypart, MaxKeypartMap: keypart}
	if a.MinFlag&basic.NoMinRange == 0 {
		r.MinKey, r.MinLength = a.MinValue, argLen
	}
	if a.MaxFlag&basic.NoMaxRange == 0 {
		r.MaxKey, r.MaxLength = a.MaxValue, argLen
	}
	return r
}

type groupQueryInfo struct {
	q        *GroupMinMaxQuery
	group    []*metadata.Field
	arg      *metadata.Field
	byField  map[*metadata.Field][]Cond
	order    []*metadata.Field
	needCols *roaring.Bitmap
}

// GroupMinMaxPlan 在可用索引中找代价最小的分组跳跃读取计划，找不到返回 nil
func (p *Param) GroupMinMaxPlan(q *GroupMinMaxQuery, cond Cond, h basic.IndexCursor) (*GroupMinMaxPlan, error) {
	info := &groupQueryInfo{q: q, byField: make(map[*metadata.Field][]Cond), needCols: roaring.New()}
	for _, name := range q.GroupBy {
		f := p.Share.Field(name)
		if f == nil {
			return nil, errors.Errorf("table %s: unknown group by column %s", p.Share.Name, name)
		}
		info.group = append(info.group, f)
		info.needCols.Add(uint32(f.Nr))
	}
	if q.Arg != "" {
		if info.arg = p.Share.Field(q.Arg); info.arg == nil {
			return nil, errors.Errorf("table %s: unknown min/max argument %s", p.Share.Name, q.Arg)
		}
		info.needCols.Add(uint32(info.arg.Nr))
	}
	if cond != nil {
		var err error
		condColumns(cond, func(name string) {
			if err == nil && p.Share.Field(name) == nil {
				err = errors.Errorf("table %s: unknown column %s in condition", p.Share.Name, name)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	if !p.Switch.GroupMinMax || (len(info.group) == 0 && info.arg == nil) {
		return nil, nil
	}

	for _, c := range conjuncts(cond) {
		f := p.singleField(c)
		if f == nil {
			p.debugf("group min/max rejected: %s references more than one column", c)
			return nil, nil
		}
		if _, seen := info.byField[f]; !seen {
			info.order = append(info.order, f)
		}
		info.byField[f] = append(info.byField[f], c)
		info.needCols.Add(uint32(f.Nr))
	}
	if p.ReadSet != nil {
		info.needCols.Or(p.ReadSet)
	}

	var best *GroupMinMaxPlan
	for idx := range p.Share.Keys {
		if !p.usable(idx) {
			continue
		}
		gp := p.groupPlanFor(info, idx, h)
		if gp != nil && (best == nil || gp.Cost < best.Cost) {
			best = gp
		}
	}
	if best != nil {
		p.debugf("group min/max candidate: %s cost=%.2f", best.String(p.Share), best.Cost)
	}
	return best, nil
}

func (p *Param) groupPlanFor(info *groupQueryInfo, idx int, h basic.IndexCursor) *GroupMinMaxPlan {
	key := p.Share.Keys[idx]
	g := len(info.group)
	if g > len(key.Parts) {
		return nil
	}
	// 分组列必须恰好是索引的前 g 列，顺序不限
	groupSet := roaring.New()
	for _, f := range info.group {
		groupSet.Add(uint32(f.Nr))
	}
	seen := roaring.New()
	for i := 0; i < g; i++ {
		kp := &key.Parts[i]
		if kp.IsPrefix() || !groupSet.Contains(uint32(kp.FieldNr)) || seen.Contains(uint32(kp.FieldNr)) {
			return nil
		}
		seen.Add(uint32(kp.FieldNr))
	}
	if !roaring.AndNot(info.needCols, indexColumns(p.Share, idx, false)).IsEmpty() {
		return nil
	}

	gp := &GroupMinMaxPlan{Index: idx, GroupKeyParts: g, MinMaxArgPart: -1}
	gp.GroupPrefixLen = key.PrefixLength(g)
	argPart := g
	if info.arg != nil {
		if argPart = keyPartOf(key, info.arg); argPart < g {
			return nil
		}
		gp.MinMaxArgPart = argPart
		gp.MinMaxArgLen = key.Parts[argPart].StoreLength
		gp.HaveMin = info.q.Funcs&AggMin != 0 || info.q.Funcs == 0
		gp.HaveMax = info.q.Funcs&AggMax != 0
	}

	// 分组列与参数列之间的键列只能由等值条件固定
	for i := g; i < argPart; i++ {
		kp := &key.Parts[i]
		conds := info.byField[kp.Field]
		if len(conds) == 0 {
			return nil
		}
		tree := p.getMMTree(andOf(conds))
		a := tree.Keys[idx]
		if tree.Type == TreeImpossible || a == nil || a.Type != SelArgKeyRange ||
			a.Part != i || a.Elements != 1 || !a.isPoint() {
			return nil
		}
		gp.KeyInfix = append(gp.KeyInfix, a.MinValue[:kp.StoreLength]...)
		gp.KeyInfixParts++
	}

	var prefixConds []Cond
	for _, f := range info.order {
		switch {
		case groupSet.Contains(uint32(f.Nr)):
			prefixConds = append(prefixConds, info.byField[f]...)
		case f == info.arg:
			tree := p.getMMTree(andOf(info.byField[f]))
			if tree.Type == TreeImpossible {
				return nil
			}
			a := tree.Keys[idx]
			if a == nil {
				continue
			}
			if a.Type != SelArgKeyRange || a.Part != argPart {
				return nil
			}
			for n := a.first(); n != nil; n = n.Next {
				if r := minMaxRange(n, gp.MinMaxArgLen); r != nil {
					gp.MinMaxRanges = append(gp.MinMaxRanges, r)
				}
			}
		default:
			if part := keyPartOf(key, f); part < g || part >= argPart {
				return nil
			}
		}
	}
	if len(prefixConds) > 0 {
		gp.PrefixFilter = andOf(prefixConds)
		tree := p.getMMTree(gp.PrefixFilter)
		if tree.Type == TreeImpossible {
			return nil
		}
		if a := tree.Keys[idx]; a != nil {
			gp.PrefixRanges, _ = GetQuickKeys(key, a, g-1)
		}
	}

	rows := h.Records()
	gp.Groups = 1
	if g > 0 {
		var card int64
		if p.Stats != nil {
			card = p.Stats.Cardinality(idx, g)
		}
		if card <= 0 {
			card = rows / 10
		}
		if len(gp.PrefixRanges) > 0 && rows > 0 {
			if n, err := estimateRows(h, idx, gp.PrefixRanges); err == nil {
				card = int64(math.Ceil(float64(card) * float64(n) / float64(rows)))
			}
		}
		if card > 1 {
			gp.Groups = card
		}
	}
	gp.Cost = p.Cost.GroupMinMaxCost(gp.Groups, rows, key.KeyLength, gp.HaveMin && gp.HaveMax)
	return gp
}

// ChooseGroupReadPlan 分组查询的读取方式：分组跳跃读取与普通读取方式比较代价
func (p *Param) ChooseGroupReadPlan(q *GroupMinMaxQuery, cond Cond, tree *SelTree, h basic.IndexCursor) (*ReadPlan, error) {
	base := p.ChooseReadPlan(tree, h)
	if base.Type == PlanImpossible {
		return base, nil
	}
	gp, err := p.GroupMinMaxPlan(q, cond, h)
	if err != nil {
		return nil, err
	}
	if gp != nil && gp.Cost < costOrInf(base) {
		rp := &ReadPlan{Type: PlanGroupMinMax, GroupMinMax: gp, Rows: gp.Groups, Cost: gp.Cost}
		p.debugf("read plan: %s", rp.Describe(p.Share))
		return rp, nil
	}
	return base, nil
}
