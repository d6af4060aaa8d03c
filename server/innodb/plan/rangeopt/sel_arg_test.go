package rangeopt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-optimizer/server/conf"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/charset"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

const (
	keyPrimary = iota
	keyA
	keyAB
	keyB
	keyS
	keyTn
	keyU
)

// t(id PK, a INT NULL, b INT NULL, s VARCHAR(20) NULL, tn TINYINT, u INT NULL UNIQUE)
func newShare(t *testing.T) *metadata.TableShare {
	s, err := metadata.NewTableShare("t",
		metadata.ColumnDef{Name: "id", Type: metadata.TypeInt},
		metadata.ColumnDef{Name: "a", Type: metadata.TypeInt, Nullable: true},
		metadata.ColumnDef{Name: "b", Type: metadata.TypeInt, Nullable: true},
		metadata.ColumnDef{Name: "s", Type: metadata.TypeVarchar, Length: 20, Nullable: true, Collation: charset.Latin1},
		metadata.ColumnDef{Name: "tn", Type: metadata.TypeTinyInt},
		metadata.ColumnDef{Name: "u", Type: metadata.TypeInt, Nullable: true},
	)
	require.NoError(t, err)
	for _, def := range []metadata.IndexDef{
		{Name: "PRIMARY", Primary: true, Parts: []metadata.IndexPartDef{{Column: "id"}}},
		{Name: "idx_a", Parts: []metadata.IndexPartDef{{Column: "a"}}},
		{Name: "idx_ab", Parts: []metadata.IndexPartDef{{Column: "a"}, {Column: "b"}}},
		{Name: "idx_b", Parts: []metadata.IndexPartDef{{Column: "b"}}},
		{Name: "idx_s", Parts: []metadata.IndexPartDef{{Column: "s", Length: 4}}},
		{Name: "idx_tn", Parts: []metadata.IndexPartDef{{Column: "tn"}}},
		{Name: "uk_u", Unique: true, Parts: []metadata.IndexPartDef{{Column: "u"}}},
	} {
		_, err := s.AddIndex(def)
		require.NoError(t, err)
	}
	return s
}

func newTestParam(t *testing.T) *Param {
	return NewParam(newShare(t), conf.DefaultOptimizerSwitch())
}

func intOrNull(v int64, null bool) metadata.Datum {
	if null {
		return metadata.NullDatum()
	}
	return metadata.NewIntDatum(v)
}

// record 按 (a, b) 构造一行，其余列取默认值
func record(t *testing.T, share *metadata.TableShare, a, b metadata.Datum) metadata.Record {
	rec, err := share.MakeRecord(metadata.NewIntDatum(1), a, b, metadata.NullDatum(), metadata.NewIntDatum(0), metadata.NullDatum())
	require.NoError(t, err)
	return rec
}

func partImage(kp *metadata.KeyPartInfo, rec metadata.Record) []byte {
	img := make([]byte, kp.StoreLength)
	keycodec.StorePart(img, rec, kp)
	return img
}

// argContains 行在 key 上的各键列值是否落在区间树里
func argContains(a *SelArg, key *metadata.KeyInfo, rec metadata.Record) bool {
	if a == nil || a.Type == SelArgMaybeKey {
		return true
	}
	if a.Type == SelArgImpossible {
		return false
	}
	img := partImage(&key.Parts[a.Part], rec)
	for n := a.first(); n != nil; n = n.Next {
		if selCmp(n.KeyPart, n.MinValue, img, n.MinFlag, 0) > 0 || selCmp(n.KeyPart, n.MaxValue, img, n.MaxFlag, 0) < 0 {
			continue
		}
		if argContains(n.NextKeyPart, key, rec) {
			return true
		}
	}
	return false
}

// treeContains 行是否可能满足 tree 表示的条件
func treeContains(tree *SelTree, share *metadata.TableShare, rec metadata.Record) bool {
	switch tree.Type {
	case TreeImpossible:
		return false
	case TreeAlways, TreeMaybe:
		return true
	}
	for i, k := range tree.Keys {
		if k != nil && !argContains(k, share.Keys[i], rec) {
			return false
		}
	}
	for _, im := range tree.Merges {
		hit := false
		for _, sub := range im.Trees {
			if treeContains(sub, share, rec) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// checkTree 校验红黑树的结构与区间链表
func checkTree(t *testing.T, root *SelArg) {
	t.Helper()
	require.Nil(t, root.Parent)
	require.Equal(t, black, root.color)

	var inorder []*SelArg
	var walk func(n *SelArg) int
	walk = func(n *SelArg) int {
		if n == nil {
			return 1
		}
		if n.Left != nil {
			require.Same(t, n, n.Left.Parent)
		}
		if n.Right != nil {
			require.Same(t, n, n.Right.Parent)
		}
		if n.color == red {
			require.Equal(t, black, colorOf(n.Left), "red node with red child")
			require.Equal(t, black, colorOf(n.Right), "red node with red child")
		}
		lh := walk(n.Left)
		inorder = append(inorder, n)
		rh := walk(n.Right)
		require.Equal(t, lh, rh, "black height differs")
		if n.color == black {
			lh++
		}
		return lh
	}
	walk(root)

	require.Equal(t, len(inorder), root.Elements)
	var prev *SelArg
	i := 0
	for n := root.first(); n != nil; n = n.Next {
		require.Same(t, inorder[i], n)
		require.True(t, prev == n.Prev)
		if prev != nil {
			require.Less(t, prev.cmpMaxToMin(n), 0, "intervals overlap")
		}
		prev = n
		i++
	}
	require.Equal(t, len(inorder), i)
	require.Same(t, inorder[len(inorder)-1], root.last())
}

func pointArg(t *testing.T, m *MemRoot, share *metadata.TableShare, v int64) *SelArg {
	kp := &share.Keys[keyA].Parts[0]
	img := partImage(kp, record(t, share, metadata.NewIntDatum(v), metadata.NullDatum()))
	a := m.NewKeyRange(kp, 0, img, img, 0, 0)
	require.NotNil(t, a)
	return a
}

func TestSelArgInsertDelete(t *testing.T) {
	share := newShare(t)
	m := NewMemRoot(0, 0)
	rnd := rand.New(rand.NewSource(7))

	vals := rnd.Perm(300)
	nodes := make(map[int]*SelArg)
	root := pointArg(t, m, share, int64(vals[0]))
	nodes[vals[0]] = root
	for i, v := range vals[1:] {
		n := pointArg(t, m, share, int64(v))
		nodes[v] = n
		root = root.insert(n)
		if i%37 == 0 {
			checkTree(t, root)
		}
	}
	checkTree(t, root)
	assert.Equal(t, 300, root.Size())
	assert.Equal(t, "a = 0", root.First().intervalString())
	assert.Equal(t, "a = 299", root.Last().intervalString())

	for i, v := range rnd.Perm(300)[:290] {
		root = root.treeDelete(nodes[v])
		require.NotNil(t, root)
		if i%29 == 0 {
			checkTree(t, root)
		}
	}
	checkTree(t, root)
	assert.Equal(t, 10, root.Size())
}

func TestSelArgDeleteLast(t *testing.T) {
	share := newShare(t)
	m := NewMemRoot(0, 0)
	a := pointArg(t, m, share, 3)
	assert.Nil(t, a.treeDelete(a))
}

var condColumnsAB = []string{"a", "b"}

func randValue(rnd *rand.Rand) Value {
	return Int(int64(rnd.Intn(11)))
}

func randLeaf(rnd *rand.Rand, columns []string) Cond {
	col := columns[rnd.Intn(len(columns))]
	switch rnd.Intn(8) {
	case 0, 1, 2:
		return Cmp(col, CmpOp(rnd.Intn(int(OpGE)+1)), randValue(rnd))
	case 3:
		return Between(col, randValue(rnd), randValue(rnd))
	case 4:
		return NotBetween(col, randValue(rnd), randValue(rnd))
	case 5:
		vals := make([]Value, 1+rnd.Intn(4))
		for i := range vals {
			vals[i] = randValue(rnd)
		}
		if rnd.Intn(2) == 0 {
			return NotIn(col, vals...)
		}
		return In(col, vals...)
	case 6:
		return IsNull(col)
	}
	return IsNotNull(col)
}

func randCond(rnd *rand.Rand, columns []string, depth int) Cond {
	if depth == 0 || rnd.Intn(3) == 0 {
		return randLeaf(rnd, columns)
	}
	args := make([]Cond, 2+rnd.Intn(2))
	for i := range args {
		args[i] = randCond(rnd, columns, depth-1)
	}
	if rnd.Intn(2) == 0 {
		return And(args...)
	}
	return Or(args...)
}

// 单列条件在该列的单列索引上得到的区间树与条件完全等价
func TestAnalyzeSingleColumnExact(t *testing.T) {
	share := newShare(t)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 400; i++ {
		cond := randCond(rnd, []string{"a"}, 3)
		p := NewParam(share, conf.DefaultOptimizerSwitch())
		tree, err := p.Analyze(cond)
		require.NoError(t, err)
		for v := int64(-1); v <= 11; v++ {
			for _, null := range []bool{false, true} {
				if null && v != 0 {
					continue
				}
				rec := record(t, share, intOrNull(v, null), metadata.NewIntDatum(0))
				want := cond.Eval(share, rec)
				var got bool
				switch tree.Type {
				case TreeImpossible:
					got = false
				case TreeAlways:
					got = true
				default:
					require.Equal(t, TreeKey, tree.Type, "%s", cond)
					got = argContains(tree.Keys[keyA], share.Keys[keyA], rec)
				}
				require.Equal(t, want, got, "%s with a=%v: tree %s", cond, intOrNull(v, null), tree)
			}
		}
	}
}

// 多列条件的区间树不会漏掉满足条件的行
func TestAnalyzeNeverLosesRows(t *testing.T) {
	share := newShare(t)
	rnd := rand.New(rand.NewSource(2024))
	for i := 0; i < 300; i++ {
		cond := randCond(rnd, condColumnsAB, 3)
		p := NewParam(share, conf.DefaultOptimizerSwitch())
		tree, err := p.Analyze(cond)
		require.NoError(t, err)
		for a := int64(-1); a <= 11; a += 2 {
			for b := int64(-1); b <= 11; b++ {
				rec := record(t, share, intOrNull(a, a == 11), intOrNull(b, b == -1))
				if cond.Eval(share, rec) {
					require.True(t, treeContains(tree, share, rec), "%s lost a=%d b=%d: %s", cond, a, b, tree)
				}
			}
		}
	}
}

func TestSharedTreeIsCopiedBeforeChange(t *testing.T) {
	p := newTestParam(t)
	lt, err := p.Analyze(Cmp("a", OpLT, Int(5)))
	require.NoError(t, err)
	gt, err := p.Analyze(Cmp("a", OpGT, Int(10)))
	require.NoError(t, err)

	x := lt.Keys[keyA]
	acquire(x)
	require.Equal(t, 2, x.UseCount)
	or := KeyOr(x, gt.Keys[keyA])
	assert.NotSame(t, x, or)
	assert.Equal(t, 1, x.UseCount)
	assert.Equal(t, "NULL < a < 5", x.String())
	assert.Equal(t, "NULL < a < 5 OR 10 < a", or.String())
	checkTree(t, or)

	// 独占的树就地修改
	y := acquire(or)
	release(y)
	and := KeyAnd(or, acquire(x))
	assert.Equal(t, "NULL < a < 5", and.String())
}

func TestCloneTree(t *testing.T) {
	p := newTestParam(t)
	tree, err := p.Analyze(And(In("a", Int(1), Int(4), Int(9)), Cmp("b", OpGE, Int(2))))
	require.NoError(t, err)
	orig := tree.Keys[keyAB]
	require.NotNil(t, orig.NextKeyPart)
	next := orig.first().NextKeyPart
	uses := next.UseCount

	c := orig.cloneTree()
	checkTree(t, c)
	assert.True(t, eqTree(orig, c))
	assert.NotSame(t, orig, c)
	assert.Equal(t, 1, c.UseCount)
	assert.Equal(t, orig.String(), c.String())
	// NextKeyPart 共享
	assert.Same(t, next, c.first().NextKeyPart)
	assert.Equal(t, uses+3, next.UseCount)

	release(c)
	assert.Equal(t, uses, next.UseCount)
}

func TestEqTree(t *testing.T) {
	p := newTestParam(t)
	t1, err := p.Analyze(Or(Cmp("a", OpEQ, Int(1)), Cmp("a", OpEQ, Int(2))))
	require.NoError(t, err)
	t2, err := p.Analyze(In("a", Int(2), Int(1)))
	require.NoError(t, err)
	t3, err := p.Analyze(In("a", Int(2), Int(3)))
	require.NoError(t, err)
	assert.True(t, eqTree(t1.Keys[keyA], t2.Keys[keyA]))
	assert.False(t, eqTree(t1.Keys[keyA], t3.Keys[keyA]))
	assert.False(t, eqTree(t1.Keys[keyA], nil))
	assert.True(t, eqTree(nil, nil))
}

func TestKeyAndDisjoint(t *testing.T) {
	p := newTestParam(t)
	t1, _ := p.Analyze(Cmp("a", OpLT, Int(3)))
	t2, _ := p.Analyze(Cmp("a", OpGE, Int(3)))
	r := KeyAnd(t1.Keys[keyA], t2.Keys[keyA])
	require.NotNil(t, r)
	assert.Equal(t, SelArgImpossible, r.Type)
}

func TestKeyOrCoversWholeDomain(t *testing.T) {
	p := newTestParam(t)
	t1, _ := p.Analyze(Cmp("id", OpLT, Int(3)))
	t2, _ := p.Analyze(Cmp("id", OpGE, Int(3)))
	// 非空列上两段拼成整个值域，不再限制
	assert.Nil(t, KeyOr(t1.Keys[keyPrimary], t2.Keys[keyPrimary]))

	t3, _ := p.Analyze(Cmp("a", OpLT, Int(3)))
	t4, _ := p.Analyze(Cmp("a", OpGE, Int(3)))
	r := KeyOr(t3.Keys[keyA], t4.Keys[keyA])
	require.NotNil(t, r)
	assert.Equal(t, "NULL < a", r.String())
}

func TestKeyOrAdjacentCoalesce(t *testing.T) {
	p := newTestParam(t)
	t1, _ := p.Analyze(Between("a", Int(1), Int(3)))
	t2, _ := p.Analyze(And(Cmp("a", OpGT, Int(3)), Cmp("a", OpLT, Int(6))))
	r := KeyOr(t1.Keys[keyA], t2.Keys[keyA])
	assert.Equal(t, 1, r.Size())
	assert.Equal(t, "1 <= a < 6", r.String())
}

func TestSelArgString(t *testing.T) {
	p := newTestParam(t)
	var nilArg *SelArg
	assert.Equal(t, "ALWAYS", nilArg.String())

	cases := []struct {
		cond Cond
		key  int
		want string
	}{
		{IsNull("a"), keyA, "a IS NULL"},
		{Between("a", Int(3), Int(5)), keyA, "3 <= a <= 5"},
		{And(Cmp("a", OpEQ, Int(3)), Cmp("b", OpGT, Int(1))), keyAB, "a = 3 AND 1 < b"},
		{And(In("a", Int(1), Int(2)), Cmp("b", OpEQ, Int(7))), keyAB, "a = 1 AND b = 7 OR a = 2 AND b = 7"},
		{Cmp("id", OpLE, Int(9)), keyPrimary, "id <= 9"},
		{Cmp("a", OpEQ, Marker("x")), keyA, "MAYBE_KEY"},
	}
	for _, c := range cases {
		tree, err := p.Analyze(c.cond)
		require.NoError(t, err)
		assert.Equal(t, c.want, tree.Keys[c.key].String(), "%s", c.cond)
	}
}

func TestSelCmp(t *testing.T) {
	share := newShare(t)
	kp := &share.Keys[keyA].Parts[0]
	img := func(v int64) []byte {
		return partImage(kp, record(t, share, metadata.NewIntDatum(v), metadata.NullDatum()))
	}
	null := partImage(kp, record(t, share, metadata.NullDatum(), metadata.NullDatum()))

	assert.Equal(t, 0, selCmp(kp, img(3), img(3), 0, 0))
	assert.Equal(t, -1, selCmp(kp, img(2), img(3), 0, 0))
	assert.Equal(t, 1, selCmp(kp, img(4), img(3), 0, 0))
	assert.Equal(t, -1, selCmp(kp, null, img(-5), 0, 0))
	assert.Equal(t, 0, selCmp(kp, null, null, 0, 0))
	// 同值不同开闭
	assert.Equal(t, -2, selCmp(kp, img(3), img(3), basic.NearMax, 0))
	assert.Equal(t, 2, selCmp(kp, img(3), img(3), basic.NearMin, 0))
	assert.Equal(t, -1, selCmp(kp, nil, img(3), basic.NoMinRange, 0))
	assert.Equal(t, 1, selCmp(kp, nil, img(3), basic.NoMaxRange, 0))
}
