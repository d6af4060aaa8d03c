package rangeopt

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-optimizer/server/conf"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

func TestAnalyzeLeaves(t *testing.T) {
	cases := []struct {
		cond Cond
		typ  SelTreeType
		key  int
		want string
	}{
		{Cmp("a", OpEQ, Int(3)), TreeKey, keyA, "a = 3"},
		{Cmp("a", OpNE, Int(3)), TreeKey, keyA, "NULL < a < 3 OR 3 < a"},
		{In("a", Int(5), Int(1), Int(3)), TreeKey, keyA, "a = 1 OR a = 3 OR a = 5"},
		{NotIn("a", Int(1), Int(3)), TreeKey, keyA, "NULL < a < 1 OR 1 < a < 3 OR 3 < a"},
		{NotBetween("a", Int(2), Int(4)), TreeKey, keyA, "NULL < a < 2 OR 4 < a"},
		{Cmp("a", OpNullSafeEQ, Null()), TreeKey, keyA, "a IS NULL"},
		{IsNotNull("a"), TreeKey, keyA, "NULL < a"},
		{Or(Cmp("a", OpLT, Int(3)), Cmp("a", OpGE, Int(3))), TreeKey, keyA, "NULL < a"},
		{And(Cmp("a", OpGT, Int(1)), Cmp("b", OpEQ, Int(2))), TreeKey, keyAB, "1 < a AND b = 2"},
		{Cmp("tn", OpGE, Int(-1000)), TreeAlways, 0, ""},
		{Cmp("tn", OpLT, Int(1000)), TreeAlways, 0, ""},
		{Cmp("tn", OpGT, Int(1000)), TreeImpossible, 0, ""},
		{Cmp("tn", OpEQ, Int(-1000)), TreeImpossible, 0, ""},
		{Cmp("tn", OpLE, Int(100)), TreeKey, keyTn, "tn <= 100"},
		{Between("a", Int(5), Int(3)), TreeImpossible, 0, ""},
		{Cmp("a", OpEQ, Null()), TreeImpossible, 0, ""},
		{Cmp("a", OpNE, Null()), TreeImpossible, 0, ""},
		{NotIn("a", Int(1), Null()), TreeImpossible, 0, ""},
		{In("a"), TreeImpossible, 0, ""},
		{Or(), TreeImpossible, 0, ""},
		{And(), TreeAlways, 0, ""},
		{IsNull("id"), TreeImpossible, 0, ""},
		{IsNotNull("id"), TreeAlways, 0, ""},
		{And(Cmp("a", OpLT, Int(3)), Cmp("a", OpGT, Int(5))), TreeImpossible, 0, ""},
		{Cmp("s", OpEQ, Str("abcdef")), TreeKey, keyS, "s = abcd"},
		{Cmp("s", OpGT, Str("abcdef")), TreeKey, keyS, "abcd <= s"},
		{Cmp("s", OpLT, Str("ab")), TreeKey, keyS, "NULL < s <= ab"},
		{Cmp("s", OpEQ, Int(3)), TreeAlways, 0, ""},
		{&CondOpaque{Text: "f(a)", Columns: []string{"a"}}, TreeMaybe, 0, ""},
		{And(&CondOpaque{Text: "f(a)"}, Cmp("a", OpEQ, Int(3))), TreeKeySmaller, keyA, "a = 3"},
		{Or(&CondOpaque{Text: "f(a)"}, Cmp("a", OpEQ, Int(3))), TreeMaybe, 0, ""},
	}
	for _, c := range cases {
		p := newTestParam(t)
		tree, err := p.Analyze(c.cond)
		require.NoError(t, err, "%s", c.cond)
		assert.Equal(t, c.typ, tree.Type, "%s: %s", c.cond, tree)
		if c.want != "" {
			assert.Equal(t, c.want, tree.Keys[c.key].String(), "%s", c.cond)
		}
	}
}

func TestAnalyzePlaceholder(t *testing.T) {
	p := newTestParam(t)
	tree, err := p.Analyze(And(Cmp("a", OpEQ, Marker("x")), Cmp("b", OpEQ, Int(2))))
	require.NoError(t, err)
	assert.Equal(t, TreeKey, tree.Type)
	assert.Equal(t, SelArgMaybeKey, tree.Keys[keyA].Type)
	// 第一个键列值未知，区间树不能驱动扫描
	ranges, _ := GetQuickKeys(p.Share.Keys[keyAB], tree.Keys[keyAB], -1)
	assert.Empty(t, ranges)
	assert.Equal(t, "b = 2", tree.Keys[keyB].String())
}

func TestAnalyzeNilAndUnknownColumn(t *testing.T) {
	p := newTestParam(t)
	tree, err := p.Analyze(nil)
	require.NoError(t, err)
	assert.Equal(t, TreeAlways, tree.Type)

	_, err = p.Analyze(And(Cmp("a", OpEQ, Int(1)), Cmp("nope", OpEQ, Int(1))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestAnalyzeSecondKeyPart(t *testing.T) {
	p := newTestParam(t)
	tree, err := p.Analyze(Cmp("b", OpEQ, Int(2)))
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Keys[keyAB].Part)
	assert.Equal(t, 0, tree.Keys[keyB].Part)
	assert.True(t, tree.KeysMap.Contains(keyAB))
	assert.False(t, tree.KeysMap.Contains(keyA))
}

func TestAnalyzeIndexMergeCandidates(t *testing.T) {
	p := newTestParam(t)
	tree, err := p.Analyze(Or(Cmp("a", OpEQ, Int(1)), Cmp("b", OpEQ, Int(2))))
	require.NoError(t, err)
	require.Equal(t, TreeKey, tree.Type)
	assert.True(t, tree.KeysMap.IsEmpty())
	require.Len(t, tree.Merges, 1)
	im := tree.Merges[0]
	require.Len(t, im.Trees, 2)
	// 不从第一个键列开始的 idx_ab(b) 已被去掉
	assert.Nil(t, im.Trees[1].Keys[keyAB])
	assert.NotNil(t, im.Trees[1].Keys[keyB])
	assert.Contains(t, tree.String(), "merge{")

	// 与能用单个索引的条件求交时丢弃 index merge
	and := p.TreeAnd(tree, mustAnalyze(t, p, Cmp("u", OpEQ, Int(4))))
	assert.Empty(t, and.Merges)
	assert.Equal(t, "u = 4", and.Keys[keyU].String())
}

func TestAnalyzeIndexMergeListOr(t *testing.T) {
	p := newTestParam(t)
	c1 := Or(Cmp("a", OpEQ, Int(1)), Cmp("b", OpEQ, Int(2)))
	c2 := Or(Cmp("u", OpEQ, Int(1)), Cmp("tn", OpEQ, Int(5)))
	tree, err := p.Analyze(Or(c1, c2))
	require.NoError(t, err)
	require.Len(t, tree.Merges, 1)
	assert.Len(t, tree.Merges[0].Trees, 4)
	assert.False(t, tree.LooseMerge)

	// (c1 AND c2) OR c3：每边只保留第一个候选
	c3 := Or(Cmp("id", OpEQ, Int(1)), Cmp("s", OpEQ, Str("x")))
	c4 := Or(Cmp("id", OpEQ, Int(9)), Cmp("tn", OpEQ, Int(9)))
	tree, err = p.Analyze(Or(And(c1, c2), And(c3, c4)))
	require.NoError(t, err)
	require.Len(t, tree.Merges, 1)
	assert.True(t, tree.LooseMerge)
}

func TestAnalyzeOrMixed(t *testing.T) {
	p := newTestParam(t)
	// 有一侧无法分析时整体无法分析
	tree, err := p.Analyze(Or(Cmp("a", OpEQ, Int(1)), &CondOpaque{Text: "f(b)", Columns: []string{"b"}}))
	require.NoError(t, err)
	assert.Equal(t, TreeMaybe, tree.Type)

	tree, err = p.Analyze(Or(Cmp("a", OpEQ, Int(1)), Cmp("id", OpGT, Int(0))))
	require.NoError(t, err)
	require.Len(t, tree.Merges, 1)
}

func TestAnalyzeRemoveJumpScans(t *testing.T) {
	share := newShare(t)
	sw := conf.DefaultOptimizerSwitch()
	p := NewParam(share, sw)
	p.Usable = roaring.BitmapOf(keyA, keyAB)
	// 只剩 idx_ab(b) 这种跳跃扫描，整体不可用
	tree, err := p.Analyze(Or(Cmp("a", OpEQ, Int(1)), Cmp("b", OpEQ, Int(2))))
	require.NoError(t, err)
	assert.Equal(t, TreeAlways, tree.Type)

	sw.RemoveJumpScans = false
	p = NewParam(share, sw)
	p.Usable = roaring.BitmapOf(keyA, keyAB)
	tree, err = p.Analyze(Or(Cmp("a", OpEQ, Int(1)), Cmp("b", OpEQ, Int(2))))
	require.NoError(t, err)
	require.Len(t, tree.Merges, 1)
	assert.Equal(t, 1, tree.Merges[0].Trees[1].Keys[keyAB].Part)
}

func TestAnalyzeOutOfMemory(t *testing.T) {
	sw := conf.DefaultOptimizerSwitch()
	sw.MaxSelArgs = 8
	p := NewParam(newShare(t), sw)
	vals := make([]Value, 50)
	for i := range vals {
		vals[i] = Int(int64(i))
	}
	tree, err := p.Analyze(In("a", vals...))
	require.NoError(t, err)
	assert.Equal(t, TreeAlways, tree.Type)
	assert.True(t, p.Arena.OutOfMemory())
}

func TestAnalyzeNotInTooLong(t *testing.T) {
	p := newTestParam(t)
	vals := make([]Value, maxNotInValues+1)
	for i := range vals {
		vals[i] = Int(int64(i))
	}
	tree, err := p.Analyze(NotIn("a", vals...))
	require.NoError(t, err)
	assert.Equal(t, TreeAlways, tree.Type)
}

// w(big BIGINT, ubig BIGINT UNSIGNED NULL)
func newBigIntParam(t *testing.T) *Param {
	s, err := metadata.NewTableShare("w",
		metadata.ColumnDef{Name: "big", Type: metadata.TypeBigInt},
		metadata.ColumnDef{Name: "ubig", Type: metadata.TypeBigInt, Unsigned: true, Nullable: true},
	)
	require.NoError(t, err)
	for _, def := range []metadata.IndexDef{
		{Name: "idx_big", Parts: []metadata.IndexPartDef{{Column: "big"}}},
		{Name: "idx_ubig", Parts: []metadata.IndexPartDef{{Column: "ubig"}}},
	} {
		_, err := s.AddIndex(def)
		require.NoError(t, err)
	}
	return NewParam(s, conf.DefaultOptimizerSwitch())
}

func dec(t *testing.T, s string) Value {
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return Lit(metadata.NewDecimalDatum(d))
}

func TestAnalyzeBigIntLimits(t *testing.T) {
	const two63, two64 = "9223372036854775808", "18446744073709551616"
	cases := []struct {
		cond Cond
		typ  SelTreeType
		key  int
		want string
	}{
		{Cmp("big", OpLT, dec(t, two63)), TreeAlways, 0, ""},
		{Cmp("big", OpLE, Lit(metadata.NewFloatDatum(9223372036854775808.0))), TreeAlways, 0, ""},
		{Cmp("big", OpGT, dec(t, two63)), TreeImpossible, 0, ""},
		{Cmp("big", OpEQ, Lit(metadata.NewFloatDatum(9223372036854775808.0))), TreeImpossible, 0, ""},
		{Cmp("big", OpGE, dec(t, "-9223372036854775809")), TreeAlways, 0, ""},
		{Cmp("big", OpLT, dec(t, "-9223372036854775809")), TreeImpossible, 0, ""},
		{Cmp("big", OpLT, dec(t, "9223372036854775807")), TreeKey, 0, "big < 9223372036854775807"},
		{Cmp("ubig", OpGE, Int(-1)), TreeAlways, 0, ""},
		{Cmp("ubig", OpLT, Int(-1)), TreeImpossible, 0, ""},
		{Cmp("ubig", OpEQ, Int(-5)), TreeImpossible, 0, ""},
		{Cmp("ubig", OpGT, dec(t, two64)), TreeImpossible, 0, ""},
		{Cmp("ubig", OpLE, Lit(metadata.NewFloatDatum(18446744073709551616.0))), TreeAlways, 0, ""},
		{Cmp("ubig", OpGT, dec(t, two63)), TreeKey, 1, "9223372036854775808 < ubig"},
	}
	for _, c := range cases {
		p := newBigIntParam(t)
		tree, err := p.Analyze(c.cond)
		require.NoError(t, err, "%s", c.cond)
		assert.Equal(t, c.typ, tree.Type, "%s: %s", c.cond, tree)
		if c.want != "" {
			assert.Equal(t, c.want, tree.Keys[c.key].String(), "%s", c.cond)
		}
	}
}

func mustAnalyze(t *testing.T, p *Param, cond Cond) *SelTree {
	tree, err := p.Analyze(cond)
	require.NoError(t, err)
	return tree
}
