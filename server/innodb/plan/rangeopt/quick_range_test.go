package rangeopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
)

func quickKeys(t *testing.T, p *Param, key int, cond Cond, lastPart int) ([]*QuickRange, int) {
	tree := mustAnalyze(t, p, cond)
	require.Equal(t, TreeKey, tree.Type, "%s", cond)
	return GetQuickKeys(p.Share.Keys[key], tree.Keys[key], lastPart)
}

func rangeStrings(p *Param, key int, ranges []*QuickRange) []string {
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = r.String(p.Share.Keys[key].Parts)
	}
	return out
}

func TestQuickKeysUnique(t *testing.T) {
	p := newTestParam(t)
	ranges, used := quickKeys(t, p, keyPrimary, In("id", Int(7), Int(3)), -1)
	require.Len(t, ranges, 2)
	assert.Equal(t, 1, used)
	for _, r := range ranges {
		assert.Equal(t, basic.EqRange|basic.UniqueRange, r.Flag)
		assert.Equal(t, 4, r.MinLength)
		assert.Equal(t, basic.KeyPartMap(1), r.MinKeypartMap)
	}
	assert.Equal(t, []string{"id = 3", "id = 7"}, rangeStrings(p, keyPrimary, ranges))

	// 唯一索引上的 NULL 点区间可能有多行
	ranges, _ = quickKeys(t, p, keyU, IsNull("u"), -1)
	require.Len(t, ranges, 1)
	assert.Equal(t, basic.EqRange|basic.NullRange, ranges[0].Flag)
	assert.Equal(t, "u IS NULL", ranges[0].String(p.Share.Keys[keyU].Parts))

	ranges, _ = quickKeys(t, p, keyU, Cmp("u", OpEQ, Int(5)), -1)
	assert.Equal(t, basic.EqRange|basic.UniqueRange, ranges[0].Flag)
}

func TestQuickKeysMultiPart(t *testing.T) {
	p := newTestParam(t)
	cond := And(In("a", Int(1), Int(2)), Cmp("b", OpGT, Int(3)))
	ranges, used := quickKeys(t, p, keyAB, cond, -1)
	require.Len(t, ranges, 2)
	assert.Equal(t, 2, used)
	r := ranges[0]
	assert.Equal(t, basic.NearMin, r.Flag)
	assert.Equal(t, 10, r.MinLength)
	assert.Equal(t, 5, r.MaxLength)
	assert.Equal(t, basic.KeyPartMap(3), r.MinKeypartMap)
	assert.Equal(t, basic.KeyPartMap(1), r.MaxKeypartMap)
	assert.Equal(t, "(1,3) < (a,b) <= 1", r.String(p.Share.Keys[keyAB].Parts))

	// 只用第一个键列
	ranges, used = quickKeys(t, p, keyAB, cond, 0)
	require.Len(t, ranges, 2)
	assert.Equal(t, 1, used)
	assert.Equal(t, basic.EqRange, ranges[0].Flag)
	assert.Equal(t, 5, ranges[0].MinLength)
	assert.Equal(t, []string{"a = 1", "a = 2"}, rangeStrings(p, keyAB, ranges))

	ranges, _ = quickKeys(t, p, keyAB, And(Cmp("a", OpEQ, Int(4)), Cmp("b", OpEQ, Int(6))), -1)
	require.Len(t, ranges, 1)
	assert.Equal(t, basic.EqRange, ranges[0].Flag)
	assert.Equal(t, "a = 4 AND b = 6", ranges[0].String(p.Share.Keys[keyAB].Parts))
}

func TestQuickKeysOpenEnds(t *testing.T) {
	p := newTestParam(t)
	ranges, _ := quickKeys(t, p, keyPrimary, Cmp("id", OpLT, Int(3)), -1)
	require.Len(t, ranges, 1)
	assert.Equal(t, basic.NoMinRange|basic.NearMax, ranges[0].Flag)
	assert.Equal(t, 0, ranges[0].MinLength)
	assert.Equal(t, "id < 3", ranges[0].String(p.Share.Keys[keyPrimary].Parts))

	// 可空列的下界是 NULL 之后
	ranges, _ = quickKeys(t, p, keyA, Cmp("a", OpLT, Int(3)), -1)
	require.Len(t, ranges, 1)
	assert.Equal(t, basic.NearMin|basic.NearMax, ranges[0].Flag)
	assert.Equal(t, "NULL < a < 3", ranges[0].String(p.Share.Keys[keyA].Parts))

	ranges, _ = quickKeys(t, p, keyA, Cmp("a", OpGE, Int(8)), -1)
	assert.Equal(t, basic.NoMaxRange, ranges[0].Flag)
	assert.Equal(t, "8 <= a", ranges[0].String(p.Share.Keys[keyA].Parts))

	// 起点开区间时后续键列不写入起点
	ranges, _ = quickKeys(t, p, keyAB, And(Cmp("a", OpGT, Int(1)), Cmp("b", OpEQ, Int(2))), -1)
	require.Len(t, ranges, 1)
	assert.Equal(t, 5, ranges[0].MinLength)
	assert.Equal(t, basic.NearMin|basic.NoMaxRange, ranges[0].Flag)
}

func TestQuickKeysSkipsNonLeadingTree(t *testing.T) {
	p := newTestParam(t)
	ranges, used := quickKeys(t, p, keyAB, Cmp("b", OpEQ, Int(2)), -1)
	assert.Empty(t, ranges)
	assert.Zero(t, used)
	ranges, _ = GetQuickKeys(p.Share.Keys[keyA], nil, -1)
	assert.Empty(t, ranges)
}

func TestQuickRangeEndpoints(t *testing.T) {
	p := newTestParam(t)
	ranges, _ := quickKeys(t, p, keyA, Or(Cmp("a", OpEQ, Int(2)), And(Cmp("a", OpGT, Int(4)), Cmp("a", OpLT, Int(9)))), -1)
	require.Len(t, ranges, 2)

	eq := ranges[0]
	assert.Equal(t, basic.HaReadKeyExact, eq.MinEndpoint().Flag)
	assert.Equal(t, basic.HaReadAfterKey, eq.MaxEndpoint().Flag)

	open := ranges[1]
	assert.Equal(t, basic.HaReadAfterKey, open.MinEndpoint().Flag)
	assert.Equal(t, basic.HaReadBeforeKey, open.MaxEndpoint().Flag)
	assert.Equal(t, "4 < a < 9", open.String(p.Share.Keys[keyA].Parts))

	kr := open.MakeMinEndpoint(2, basic.KeyPartMap(0))
	assert.Equal(t, 2, kr.Length)
	assert.Equal(t, basic.KeyPartMap(0), kr.Keypart)

	ranges, _ = quickKeys(t, p, keyA, Cmp("a", OpGE, Int(4)), -1)
	assert.Equal(t, basic.HaReadKeyOrNext, ranges[0].MinEndpoint().Flag)
}
