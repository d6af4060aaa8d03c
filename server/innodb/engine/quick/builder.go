package quick

import (
	"github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/server/conf"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/plan/rangeopt"
)

// BuildOptions 创建读取方式时的选项
type BuildOptions struct {
	Switch conf.OptimizerSwitch
	// Sorted 区间扫描按索引顺序返回
	Sorted bool
	// Desc 区间扫描按索引逆序返回
	Desc bool
	// MergeMemLimit index merge 行引用集合的内存上限
	MergeMemLimit int64
}

func (o *BuildOptions) rangeOptions(covering bool) RangeOptions {
	return RangeOptions{
		Sorted:        o.Sorted || o.Desc,
		KeyRead:       covering,
		MRR:           o.Switch.MRR,
		MRRBufferSize: o.Switch.MRRBufferSize,
	}
}

// Build 按读取计划创建读取方式
func Build(plan *rangeopt.ReadPlan, h basic.Handler, opt BuildOptions) (Select, error) {
	switch plan.Type {
	case rangeopt.PlanImpossible:
		return NewEmpty(h), nil
	case rangeopt.PlanTableScan:
		return NewTableScan(h), nil
	case rangeopt.PlanRange:
		rp := plan.Range
		q, err := NewRangeSelect(h, rp.Index, rp.Ranges, opt.rangeOptions(rp.Covering))
		if err != nil {
			return nil, errors.Annotatef(err, "range on index %d", rp.Index)
		}
		if opt.Desc {
			return NewSelectDesc(q, rp.UsedKeyParts), nil
		}
		return q, nil
	case rangeopt.PlanIndexMerge:
		return buildIndexMerge(plan.Merge, h, opt)
	case rangeopt.PlanGroupMinMax:
		q, err := NewGroupMinMaxSelect(h, plan.GroupMinMax)
		if err != nil {
			return nil, errors.Annotatef(err, "group min/max on index %d", plan.GroupMinMax.Index)
		}
		return q, nil
	}
	return nil, errors.NotSupportedf("read plan %s", plan.Type)
}

func buildIndexMerge(mp *rangeopt.IndexMergePlan, h basic.Handler, opt BuildOptions) (*IndexMergeSelect, error) {
	share := h.Share()
	scans := make([]*RangeSelect, 0, len(mp.Scans))
	for _, s := range mp.Scans {
		// 聚簇主键扫描直接读整行，其余扫描只需要行引用
		pkScan := h.PrimaryKeyIsClustered() && s.Index == share.PrimaryKey
		ro := RangeOptions{KeyRead: !pkScan, MRR: opt.Switch.MRR, MRRBufferSize: opt.Switch.MRRBufferSize}
		q, err := NewRangeSelect(h, s.Index, s.Ranges, ro)
		if err != nil {
			return nil, errors.Annotatef(err, "index merge scan on index %d", s.Index)
		}
		scans = append(scans, q)
	}
	return NewIndexMergeSelect(h, scans, opt.MergeMemLimit), nil
}
