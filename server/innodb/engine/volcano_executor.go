package engine

import (
	"context"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/logger"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/engine/quick"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/plan/rangeopt"
)

// Row 算子输出的一行
type Row struct {
	Record metadata.Record
	// Min/Max 分组跳跃读取时该组的聚合值
	Min metadata.Datum
	Max metadata.Datum
}

// Operator 算子接口
type Operator interface {
	// Open 初始化算子
	Open(ctx context.Context) error
	// Next 获取下一条记录，没有更多记录时返回 nil
	Next(ctx context.Context) (*Row, error)
	// Close 关闭算子并释放资源
	Close() error
}

// BaseOperator 基础算子实现
type BaseOperator struct {
	children []Operator
}

func (b *BaseOperator) Open(ctx context.Context) error {
	for _, child := range b.children {
		if err := child.Open(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *BaseOperator) Close() error {
	for _, child := range b.children {
		if err := child.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ScanOperator 用选定的读取方式扫描表
type ScanOperator struct {
	BaseOperator
	sel quick.Select
}

func NewScanOperator(sel quick.Select) *ScanOperator {
	return &ScanOperator{sel: sel}
}

func (s *ScanOperator) Open(ctx context.Context) error {
	if err := s.sel.Init(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.sel.Reset())
}

func (s *ScanOperator) Next(ctx context.Context) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := s.sel.GetNext()
	if err == basic.HaErrEndOfFile {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "%s", s.sel.Describe())
	}
	row := &Row{Record: append(metadata.Record(nil), s.sel.Record()...)}
	if g, ok := s.sel.(*quick.GroupMinMaxSelect); ok {
		row.Min, row.Max = g.Min(), g.Max()
	}
	return row, nil
}

func (s *ScanOperator) Close() error {
	return errors.Trace(s.sel.Close())
}

// FilterOperator 过滤算子
type FilterOperator struct {
	BaseOperator
	share     *metadata.TableShare
	condition rangeopt.Cond
}

func NewFilterOperator(child Operator, share *metadata.TableShare, condition rangeopt.Cond) *FilterOperator {
	return &FilterOperator{
		BaseOperator: BaseOperator{children: []Operator{child}},
		share:        share,
		condition:    condition,
	}
}

func (f *FilterOperator) Next(ctx context.Context) (*Row, error) {
	for {
		row, err := f.children[0].Next(ctx)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		if f.condition.Eval(f.share, row.Record) {
			return row, nil
		}
	}
}

// VolcanoExecutor 火山模型执行器
type VolcanoExecutor struct {
	h    basic.Handler
	root Operator
	desc string
}

func NewVolcanoExecutor(h basic.Handler) *VolcanoExecutor {
	return &VolcanoExecutor{h: h}
}

// BuildPlan 根据读取计划构建算子树；区间读取可能多读，其余条件由过滤算子检查
func (v *VolcanoExecutor) BuildPlan(ctx context.Context, plan *rangeopt.ReadPlan, cond rangeopt.Cond, opt quick.BuildOptions) error {
	sel, err := quick.Build(plan, v.h, opt)
	if err != nil {
		return errors.Trace(err)
	}
	v.desc = sel.Describe()
	v.root = NewScanOperator(sel)
	if cond != nil && plan.Type != rangeopt.PlanGroupMinMax {
		v.root = NewFilterOperator(v.root, v.h.Share(), cond)
	}
	logger.Debugf("execute %s with %s", v.h.Share().Name, v.desc)
	return nil
}

// Describe 选定的读取方式
func (v *VolcanoExecutor) Describe() string {
	return v.desc
}

// Execute 执行查询
func (v *VolcanoExecutor) Execute(ctx context.Context) ([]*Row, error) {
	if v.root == nil {
		return nil, errors.New("no plan built")
	}
	if err := v.root.Open(ctx); err != nil {
		return nil, err
	}
	defer v.root.Close()

	var results []*Row
	for {
		row, err := v.root.Next(ctx)
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		results = append(results, row)
	}
	return results, nil
}
