package rangeopt

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-optimizer/server/conf"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/storage/memstore"
)

// newPlanTable 1000 行：a = id%50 (id%17==0 时为 NULL)，b = id%7，tn = id%100，u = id
func newPlanTable(t *testing.T) *memstore.Table {
	tbl := memstore.NewTable(newShare(t))
	for id := int64(1); id <= 1000; id++ {
		_, err := tbl.InsertValues(
			metadata.NewIntDatum(id),
			intOrNull(id%50, id%17 == 0),
			metadata.NewIntDatum(id%7),
			metadata.NullDatum(),
			metadata.NewIntDatum(id%100),
			metadata.NewIntDatum(id),
		)
		require.NoError(t, err)
	}
	return tbl
}

func countRows(t *testing.T, tbl *memstore.Table, cond Cond) int64 {
	h := tbl.Open()
	require.NoError(t, h.RndInit())
	var n int64
	for h.RndNext(h.Record()) == nil {
		if cond.Eval(tbl.Share(), h.Record()) {
			n++
		}
	}
	return n
}

func readPlan(t *testing.T, tbl *memstore.Table, cond Cond, setup func(p *Param)) *ReadPlan {
	p := NewParam(tbl.Share(), conf.DefaultOptimizerSwitch())
	p.Stats = tbl
	if setup != nil {
		setup(p)
	}
	return p.ChooseReadPlan(mustAnalyze(t, p, cond), tbl.Open())
}

func TestChooseReadPlanRange(t *testing.T) {
	tbl := newPlanTable(t)
	cond := Cmp("a", OpEQ, Int(3))
	rp := readPlan(t, tbl, cond, nil)
	require.Equal(t, PlanRange, rp.Type, rp.Describe(tbl.Share()))
	assert.Equal(t, keyA, rp.Range.Index)
	assert.Equal(t, countRows(t, tbl, cond), rp.Rows)
	assert.False(t, rp.Range.Covering)
	assert.Contains(t, rp.Describe(tbl.Share()), "range rows=")
	assert.Contains(t, rp.Describe(tbl.Share()), "idx_a(a = 3)")

	// 唯一点区间按一行计
	rp = readPlan(t, tbl, In("u", Int(5), Int(9)), nil)
	require.Equal(t, PlanRange, rp.Type)
	assert.Equal(t, keyU, rp.Range.Index)
	assert.Equal(t, int64(2), rp.Rows)
}

func TestChooseReadPlanTableScan(t *testing.T) {
	tbl := newPlanTable(t)
	rp := readPlan(t, tbl, Cmp("a", OpGT, Int(-5)), nil)
	assert.Equal(t, PlanTableScan, rp.Type)
	assert.Equal(t, int64(1000), rp.Rows)

	rp = readPlan(t, tbl, nil, nil)
	assert.Equal(t, PlanTableScan, rp.Type)

	rp = readPlan(t, tbl, &CondOpaque{Text: "f(a)", Columns: []string{"a"}}, nil)
	assert.Equal(t, PlanTableScan, rp.Type)
}

func TestChooseReadPlanImpossible(t *testing.T) {
	tbl := newPlanTable(t)
	rp := readPlan(t, tbl, And(Cmp("a", OpGT, Int(5)), Cmp("a", OpLT, Int(2))), nil)
	assert.Equal(t, PlanImpossible, rp.Type)
	assert.Equal(t, "impossible rows=0 cost=0.00", rp.Describe(tbl.Share()))
}

func TestChooseReadPlanCovering(t *testing.T) {
	tbl := newPlanTable(t)
	cond := Between("a", Int(10), Int(12))
	rp := readPlan(t, tbl, cond, func(p *Param) {
		p.ReadSet = roaring.BitmapOf(uint32(p.Share.Field("a").Nr))
	})
	require.Equal(t, PlanRange, rp.Type, rp.Describe(tbl.Share()))
	assert.True(t, rp.Range.Covering)
	assert.Equal(t, countRows(t, tbl, cond), rp.Rows)

	// 同样的区间需要回表时代价更高
	full := readPlan(t, tbl, cond, nil)
	assert.Greater(t, costOrInf(full), rp.Cost)
}

func TestChooseReadPlanUsable(t *testing.T) {
	tbl := newPlanTable(t)
	rp := readPlan(t, tbl, Cmp("a", OpEQ, Int(3)), func(p *Param) {
		p.Usable = roaring.BitmapOf(keyPrimary, keyAB)
	})
	require.Equal(t, PlanRange, rp.Type)
	assert.Equal(t, keyAB, rp.Range.Index)
}

func TestChooseReadPlanIndexMerge(t *testing.T) {
	tbl := newPlanTable(t)
	cond := Or(Cmp("a", OpEQ, Int(3)), Cmp("u", OpEQ, Int(5)))
	rp := readPlan(t, tbl, cond, nil)
	require.Equal(t, PlanIndexMerge, rp.Type, rp.Describe(tbl.Share()))
	require.Len(t, rp.Merge.Scans, 2)
	assert.Equal(t, keyA, rp.Merge.Scans[0].Index)
	assert.Equal(t, keyU, rp.Merge.Scans[1].Index)
	// a=3 的行中不含 id 5
	assert.Equal(t, countRows(t, tbl, cond), rp.Rows)
	assert.Contains(t, rp.Describe(tbl.Share()), "union(idx_a(a = 3), uk_u(u = 5))")

	sw := conf.DefaultOptimizerSwitch()
	sw.IndexMerge = false
	p := NewParam(tbl.Share(), sw)
	rp = p.ChooseReadPlan(mustAnalyze(t, p, cond), tbl.Open())
	assert.Equal(t, PlanTableScan, rp.Type)
}

func TestGroupMinMaxPlan(t *testing.T) {
	tbl := newPlanTable(t)
	query := &GroupMinMaxQuery{GroupBy: []string{"a"}, Arg: "b", Funcs: AggMin | AggMax}
	p := NewParam(tbl.Share(), conf.DefaultOptimizerSwitch())
	p.Stats = tbl

	gp, err := p.GroupMinMaxPlan(query, nil, tbl.Open())
	require.NoError(t, err)
	require.NotNil(t, gp)
	assert.Equal(t, keyAB, gp.Index)
	assert.Equal(t, 1, gp.GroupKeyParts)
	assert.Equal(t, 5, gp.GroupPrefixLen)
	assert.Equal(t, 1, gp.MinMaxArgPart)
	assert.True(t, gp.HaveMin)
	assert.True(t, gp.HaveMax)
	// 50 个值加 NULL
	assert.Equal(t, int64(51), gp.Groups)
	assert.Equal(t, "idx_ab groups=51 prefix=1 min/max(b)", gp.String(tbl.Share()))

	gp, err = p.GroupMinMaxPlan(query, Cmp("b", OpGT, Int(2)), tbl.Open())
	require.NoError(t, err)
	require.Len(t, gp.MinMaxRanges, 1)
	assert.Equal(t, "2 < b", gp.MinMaxRanges[0].String(tbl.Share().Keys[keyAB].Parts[1:2]))
	assert.Empty(t, gp.PrefixRanges)

	gp, err = p.GroupMinMaxPlan(query, And(Cmp("a", OpLT, Int(10)), Cmp("b", OpEQ, Int(1))), tbl.Open())
	require.NoError(t, err)
	require.Len(t, gp.PrefixRanges, 1)
	assert.NotNil(t, gp.PrefixFilter)
	assert.Less(t, gp.Groups, int64(51))
	assert.Contains(t, gp.String(tbl.Share()), "where NULL < a < 10")
}

func TestGroupMinMaxPlanRejected(t *testing.T) {
	tbl := newPlanTable(t)
	p := NewParam(tbl.Share(), conf.DefaultOptimizerSwitch())
	query := &GroupMinMaxQuery{GroupBy: []string{"a"}, Arg: "b", Funcs: AggMin}

	cases := []Cond{
		// 条件引用索引之外的列
		Cmp("tn", OpEQ, Int(1)),
		&CondOpaque{Text: "a+b > 3", Columns: []string{"a", "b"}},
		Or(Cmp("a", OpEQ, Int(1)), Cmp("b", OpEQ, Int(1))),
	}
	for _, cond := range cases {
		gp, err := p.GroupMinMaxPlan(query, cond, tbl.Open())
		require.NoError(t, err)
		assert.Nil(t, gp, "%s", cond)
	}

	// 分组列不是任何索引的前缀
	gp, err := p.GroupMinMaxPlan(&GroupMinMaxQuery{GroupBy: []string{"b"}, Arg: "a"}, nil, tbl.Open())
	require.NoError(t, err)
	assert.Nil(t, gp)

	_, err = p.GroupMinMaxPlan(&GroupMinMaxQuery{GroupBy: []string{"zz"}}, nil, tbl.Open())
	assert.Error(t, err)
	_, err = p.GroupMinMaxPlan(&GroupMinMaxQuery{GroupBy: []string{"a"}, Arg: "zz"}, nil, tbl.Open())
	assert.Error(t, err)

	sw := conf.DefaultOptimizerSwitch()
	sw.GroupMinMax = false
	gp, err = NewParam(tbl.Share(), sw).GroupMinMaxPlan(query, nil, tbl.Open())
	require.NoError(t, err)
	assert.Nil(t, gp)
}

func TestChooseGroupReadPlan(t *testing.T) {
	tbl := newPlanTable(t)
	p := NewParam(tbl.Share(), conf.DefaultOptimizerSwitch())
	p.Stats = tbl
	query := &GroupMinMaxQuery{GroupBy: []string{"a"}, Arg: "b", Funcs: AggMax}
	rp, err := p.ChooseGroupReadPlan(query, nil, mustAnalyze(t, p, nil), tbl.Open())
	require.NoError(t, err)
	assert.Equal(t, PlanGroupMinMax, rp.Type)
	assert.Equal(t, rp.GroupMinMax.Groups, rp.Rows)
	assert.Contains(t, rp.Describe(tbl.Share()), "group min/max")

	cond := And(Cmp("a", OpGT, Int(3)), Cmp("a", OpLT, Int(2)))
	rp, err = p.ChooseGroupReadPlan(query, cond, mustAnalyze(t, p, cond), tbl.Open())
	require.NoError(t, err)
	assert.Equal(t, PlanImpossible, rp.Type)
}

func TestCostModel(t *testing.T) {
	c := NewDefaultCostModel()
	assert.Less(t, c.TableScanCost(100, 20), c.TableScanCost(10000, 20))
	assert.Less(t, c.RangeScanCost(1, 100, 8, true), c.RangeScanCost(1, 100, 8, false))
	assert.Less(t, c.RangeScanCost(1, 100, 8, true), c.RangeScanCost(10, 100, 8, true))
	assert.Greater(t, c.IndexMergeCost(5, 100), 5.0)
	assert.Less(t, c.GroupMinMaxCost(10, 1000, 8, false), c.GroupMinMaxCost(10, 1000, 8, true))
	// 空表只有一次寻道
	assert.Equal(t, c.DiskSeekCost, c.TableScanCost(0, 20))
}

func TestMemRoot(t *testing.T) {
	m := NewMemRoot(byteSlab, 0)
	b := m.Alloc(16)
	require.Len(t, b, 16)
	assert.Equal(t, int64(byteSlab), m.Used())
	c := m.Copy([]byte("hello"))
	assert.Equal(t, []byte("hello"), c)
	assert.False(t, m.OutOfMemory())

	// 下一块超出上限
	assert.Nil(t, m.Alloc(byteSlab))
	assert.True(t, m.OutOfMemory())

	gen := m.Generation
	m.Free()
	assert.False(t, m.OutOfMemory())
	assert.Zero(t, m.Used())
	assert.Equal(t, gen+1, m.Generation)

	n := NewMemRoot(0, 2)
	assert.NotNil(t, n.newSelArg())
	assert.NotNil(t, n.newSelArg())
	assert.Nil(t, n.newSelArg())
	assert.Equal(t, 2, n.SelArgCount())
	assert.True(t, n.OutOfMemory())
}
