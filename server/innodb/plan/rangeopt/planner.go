package rangeopt

import (
	"fmt"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"golang.org/x/exp/slices"
)

// PlanType 读取方式
type PlanType uint8

const (
	// PlanImpossible 条件恒假，不读任何行
	PlanImpossible PlanType = iota
	PlanTableScan
	PlanRange
	PlanIndexMerge
	PlanGroupMinMax
)

var planTypeNames = [...]string{"impossible", "table scan", "range", "index merge", "group min/max"}

func (t PlanType) String() string {
	if int(t) < len(planTypeNames) {
		return planTypeNames[t]
	}
	return "unknown"
}

// RangePlan 在一个索引上按区间扫描
type RangePlan struct {
	Index        int
	Ranges       []*QuickRange
	UsedKeyParts int
	Rows         int64
	Cost         float64
	// Covering 索引包含查询需要的全部列，不用回表
	Covering bool
}

// IndexMergePlan 多个索引扫描的并
type IndexMergePlan struct {
	Scans []*RangePlan
	Rows  int64
	Cost  float64
}

// ReadPlan 选定的读取方式
type ReadPlan struct {
	Type        PlanType
	Range       *RangePlan
	Merge       *IndexMergePlan
	GroupMinMax *GroupMinMaxPlan
	Rows        int64
	Cost        float64
}

func describeRange(share *metadata.TableShare, rp *RangePlan) string {
	key := share.Keys[rp.Index]
	items := make([]string, 0, len(rp.Ranges))
	for _, r := range rp.Ranges {
		items = append(items, r.String(key.Parts))
	}
	return fmt.Sprintf("%s(%s)", key.Name, strings.Join(items, " OR "))
}

// Describe 读取方式的一行描述
func (rp *ReadPlan) Describe(share *metadata.TableShare) string {
	var detail string
	switch rp.Type {
	case PlanRange:
		detail = describeRange(share, rp.Range)
	case PlanIndexMerge:
		items := make([]string, 0, len(rp.Merge.Scans))
		for _, s := range rp.Merge.Scans {
			items = append(items, describeRange(share, s))
		}
		detail = "union(" + strings.Join(items, ", ") + ")"
	case PlanGroupMinMax:
		detail = rp.GroupMinMax.String(share)
	}
	s := fmt.Sprintf("%s rows=%d cost=%.2f", rp.Type, rp.Rows, rp.Cost)
	if detail != "" {
		s += " " + detail
	}
	return s
}

// indexColumns 索引能提供完整值的列；聚簇主键表的二级索引隐含主键列
func indexColumns(share *metadata.TableShare, idx int, clustered bool) *roaring.Bitmap {
	cols := roaring.New()
	add := func(k *metadata.KeyInfo) {
		for i := range k.Parts {
			if !k.Parts[i].IsPrefix() {
				cols.Add(uint32(k.Parts[i].FieldNr))
			}
		}
	}
	add(share.Keys[idx])
	if clustered && share.PrimaryKey >= 0 && share.PrimaryKey != idx {
		add(share.Keys[share.PrimaryKey])
	}
	return cols
}

func (p *Param) covering(idx int, clustered bool) bool {
	if p.ReadSet == nil {
		return false
	}
	return roaring.AndNot(p.ReadSet, indexColumns(p.Share, idx, clustered)).IsEmpty()
}

// estimateRows 各区间行数之和，唯一点区间计为一行
func estimateRows(h basic.IndexCursor, idx int, ranges []*QuickRange) (int64, error) {
	var rows int64
	for _, r := range ranges {
		if r.Flag&(basic.UniqueRange|basic.EqRange) == basic.UniqueRange|basic.EqRange {
			rows++
			continue
		}
		var min, max *basic.KeyRange
		if r.Flag&basic.NoMinRange == 0 {
			kr := r.MinEndpoint()
			min = &kr
		}
		if r.Flag&basic.NoMaxRange == 0 {
			kr := r.MaxEndpoint()
			max = &kr
		}
		n, err := h.RecordsInRange(idx, min, max)
		if err != nil {
			return 0, err
		}
		rows += n
	}
	return rows, nil
}

// rangePlan 一个索引上的区间扫描，区间树不能驱动扫描时返回 nil
func (p *Param) rangePlan(h basic.IndexCursor, idx int, arg *SelArg, indexOnly bool) *RangePlan {
	if arg == nil || arg.Type != SelArgKeyRange || arg.Part != 0 {
		return nil
	}
	key := p.Share.Keys[idx]
	ranges, used := GetQuickKeys(key, arg, -1)
	if len(ranges) == 0 {
		return nil
	}
	rows, err := estimateRows(h, idx, ranges)
	if err != nil {
		p.debugf("records_in_range on %s failed: %v", key.Name, err)
		return nil
	}
	rp := &RangePlan{Index: idx, Ranges: ranges, UsedKeyParts: used, Rows: rows}
	rp.Covering = indexOnly || p.covering(idx, h.PrimaryKeyIsClustered())
	rp.Cost = p.Cost.RangeScanCost(len(ranges), rows, key.KeyLength, rp.Covering)
	return rp
}

// bestRangePlan tree 中代价最小的单索引扫描
func (p *Param) bestRangePlan(h basic.IndexCursor, tree *SelTree, indexOnly bool) *RangePlan {
	var best *RangePlan
	it := tree.KeysMap.Iterator()
	for it.HasNext() {
		idx := int(it.Next())
		rp := p.rangePlan(h, idx, tree.Keys[idx], indexOnly)
		if rp != nil && (best == nil || rp.Cost < best.Cost) {
			best = rp
		}
	}
	return best
}

// mergePlan 一个 index merge 候选的代价，某个分支不能用索引时返回 nil
func (p *Param) mergePlan(h basic.IndexCursor, im *SelImerge, tableRows int64) *IndexMergePlan {
	mp := &IndexMergePlan{}
	var scanCost float64
	for _, t := range im.Trees {
		if t.Type == TreeImpossible {
			continue
		}
		if !t.rangeType() {
			return nil
		}
		rp := p.bestRangePlan(h, t, true)
		if rp == nil {
			return nil
		}
		mp.Scans = append(mp.Scans, rp)
		mp.Rows += rp.Rows
		scanCost += rp.Cost
	}
	if len(mp.Scans) == 0 {
		return nil
	}
	if mp.Rows > tableRows {
		mp.Rows = tableRows
	}
	// 聚簇主键的扫描放在最后，其余分支可以跳过落在主键区间内的行
	if h.PrimaryKeyIsClustered() {
		pk := p.Share.PrimaryKey
		i := slices.IndexFunc(mp.Scans, func(s *RangePlan) bool { return s.Index == pk })
		if i >= 0 && i != len(mp.Scans)-1 {
			s := mp.Scans[i]
			mp.Scans = append(slices.Delete(mp.Scans, i, i+1), s)
		}
	}
	mp.Cost = p.Cost.IndexMergeCost(scanCost, mp.Rows)
	return mp
}

// ChooseReadPlan 在全表扫描、单索引区间扫描和 index merge 中选代价最小的
func (p *Param) ChooseReadPlan(tree *SelTree, h basic.IndexCursor) *ReadPlan {
	if tree != nil && tree.Type == TreeImpossible {
		return &ReadPlan{Type: PlanImpossible}
	}
	rows := h.Records()
	best := &ReadPlan{Type: PlanTableScan, Rows: rows, Cost: p.Cost.TableScanCost(rows, p.Share.RecLength)}
	if tree == nil || !tree.rangeType() {
		p.debugf("read plan: %s", best.Describe(p.Share))
		return best
	}

	if rp := p.bestRangePlan(h, tree, false); rp != nil && rp.Cost < best.Cost {
		best = &ReadPlan{Type: PlanRange, Range: rp, Rows: rp.Rows, Cost: rp.Cost}
	}
	if p.Switch.IndexMerge && (p.Switch.IndexMergeSortUnion || p.Switch.IndexMergeUnion) {
		for _, im := range tree.Merges {
			mp := p.mergePlan(h, im, rows)
			if mp != nil && mp.Cost < best.Cost {
				best = &ReadPlan{Type: PlanIndexMerge, Merge: mp, Rows: mp.Rows, Cost: mp.Cost}
			}
		}
	}
	p.debugf("read plan: %s", best.Describe(p.Share))
	return best
}

// costOrInf 没有计划时视为无穷大
func costOrInf(rp *ReadPlan) float64 {
	if rp == nil {
		return math.Inf(1)
	}
	return rp.Cost
}
