package rangeopt

import (
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// maxNotInValues NOT IN 列表超过这个长度时不再拆成区间
const maxNotInValues = 1000

// Analyze 把条件翻译成各索引上的区间树。
// 内存池超出限制时放弃分析，返回 ALWAYS
func (p *Param) Analyze(cond Cond) (*SelTree, error) {
	if cond == nil {
		return p.newTree(TreeAlways), nil
	}
	var err error
	condColumns(cond, func(name string) {
		if err == nil && p.Share.Field(name) == nil {
			err = errors.Errorf("table %s: unknown column %s in condition", p.Share.Name, name)
		}
	})
	if err != nil {
		return nil, err
	}

	tree := p.getMMTree(cond)
	if p.Arena.OutOfMemory() {
		p.debugf("range analysis gave up: %d sel_args, %d bytes", p.Arena.SelArgCount(), p.Arena.Used())
		tree.release()
		return p.newTree(TreeAlways), nil
	}
	if tree == nil {
		tree = p.newTree(TreeAlways)
	}
	p.debugf("range analysis of %s: %s %s", cond, tree.Type, tree)
	return tree, nil
}

func (p *Param) getMMTree(cond Cond) *SelTree {
	switch c := cond.(type) {
	case *CondAnd:
		var tree *SelTree
		for _, a := range c.Args {
			tree = p.TreeAnd(tree, p.getMMTree(a))
			if tree != nil && tree.Type == TreeImpossible {
				break
			}
		}
		if tree == nil {
			return p.newTree(TreeAlways)
		}
		return tree
	case *CondOr:
		if len(c.Args) == 0 {
			return p.newTree(TreeImpossible)
		}
		tree := p.getMMTree(c.Args[0])
		for _, a := range c.Args[1:] {
			tree = p.TreeOr(tree, p.getMMTree(a))
			if tree.Type == TreeAlways {
				break
			}
		}
		return tree
	case *CondCmp:
		f := p.Share.Field(c.Column)
		if c.Op == OpNE {
			if !c.Value.Placeholder && c.Value.Datum.IsNull() {
				return p.newTree(TreeImpossible)
			}
			return p.TreeOr(p.getMMParts(f, OpLT, c.Value), p.getMMParts(f, OpGT, c.Value))
		}
		return p.getMMParts(f, c.Op, c.Value)
	case *CondBetween:
		f := p.Share.Field(c.Column)
		if c.Not {
			return p.TreeOr(p.getMMParts(f, OpLT, c.Low), p.getMMParts(f, OpGT, c.High))
		}
		return p.TreeAnd(p.getMMParts(f, OpGE, c.Low), p.getMMParts(f, OpLE, c.High))
	case *CondIn:
		return p.getMMIn(c)
	case *CondIsNull:
		return p.getMMNull(p.Share.Field(c.Column), c.Not)
	}
	return p.newTree(TreeMaybe)
}

func (p *Param) getMMIn(c *CondIn) *SelTree {
	f := p.Share.Field(c.Column)
	if len(c.Values) == 0 {
		return p.newTree(TreeImpossible)
	}
	if !c.Not {
		tree := p.getMMParts(f, OpEQ, c.Values[0])
		for _, v := range c.Values[1:] {
			tree = p.TreeOr(tree, p.getMMParts(f, OpEQ, v))
		}
		return tree
	}
	for _, v := range c.Values {
		if !v.Placeholder && v.Datum.IsNull() {
			return p.newTree(TreeImpossible)
		}
	}
	if len(c.Values) > maxNotInValues {
		return p.newTree(TreeAlways)
	}
	var tree *SelTree
	for _, v := range c.Values {
		ne := p.TreeOr(p.getMMParts(f, OpLT, v), p.getMMParts(f, OpGT, v))
		if tree = p.TreeAnd(tree, ne); tree.Type == TreeImpossible {
			break
		}
	}
	return tree
}

// keyPartOf 索引中第一个引用该列的键列
func keyPartOf(key *metadata.KeyInfo, f *metadata.Field) int {
	for i := range key.Parts {
		if key.Parts[i].Field == f {
			return i
		}
	}
	return -1
}

// getMMParts 对每个含有该列的索引生成一棵区间树
func (p *Param) getMMParts(f *metadata.Field, op CmpOp, v Value) *SelTree {
	if !v.Placeholder && v.Datum.IsNull() {
		if op == OpNullSafeEQ {
			return p.getMMNull(f, false)
		}
		return p.newTree(TreeImpossible)
	}
	tree := p.newTree(TreeKey)
	for idx, key := range p.Share.Keys {
		if !p.usable(idx) {
			continue
		}
		part := keyPartOf(key, f)
		if part < 0 {
			continue
		}
		arg := p.getMMLeaf(&key.Parts[part], part, op, v)
		if arg == nil {
			continue
		}
		if arg.Type == SelArgImpossible {
			tree.release()
			return p.newTree(TreeImpossible)
		}
		tree.setKey(idx, arg)
	}
	if tree.KeysMap.IsEmpty() {
		return p.newTree(TreeAlways)
	}
	return tree
}

// getMMNull IS [NOT] NULL
func (p *Param) getMMNull(f *metadata.Field, not bool) *SelTree {
	if !f.Nullable {
		if not {
			return p.newTree(TreeAlways)
		}
		return p.newTree(TreeImpossible)
	}
	tree := p.newTree(TreeKey)
	for idx, key := range p.Share.Keys {
		if !p.usable(idx) {
			continue
		}
		part := keyPartOf(key, f)
		if part < 0 {
			continue
		}
		kp := &key.Parts[part]
		img := p.Arena.nullImage(kp)
		if img == nil {
			continue
		}
		var arg *SelArg
		if not {
			arg = p.Arena.NewKeyRange(kp, part, img, nil, basic.NearMin, basic.NoMaxRange)
		} else {
			arg = p.Arena.NewKeyRange(kp, part, img, img, 0, 0)
		}
		if arg != nil {
			tree.setKey(idx, arg)
		}
	}
	if tree.KeysMap.IsEmpty() {
		return p.newTree(TreeAlways)
	}
	return tree
}

// getMMLeaf 一个比较在一个键列上的区间。nil 表示这个键列上没有限制
func (p *Param) getMMLeaf(kp *metadata.KeyPartInfo, part int, op CmpOp, v Value) *SelArg {
	if v.Placeholder {
		arg := p.Arena.newTyped(SelArgMaybeKey, part)
		if arg != nil {
			arg.KeyPart = kp
		}
		return arg
	}
	f, d := kp.Field, v.Datum
	if f.IsString() {
		if d.Kind() != metadata.KindBytes {
			return nil
		}
	} else if _, ok := d.ToDecimal(); !ok {
		return nil
	}

	switch f.Store(p.scratch, d) {
	case metadata.StoreOverflow:
		if op == OpLT || op == OpLE {
			return nil
		}
		return p.Arena.newTyped(SelArgImpossible, part)
	case metadata.StoreUnderflow:
		if op == OpGT || op == OpGE {
			return nil
		}
		return p.Arena.newTyped(SelArgImpossible, part)
	case metadata.StoreTruncated:
		switch op {
		case OpEQ, OpNullSafeEQ:
			return p.Arena.newTyped(SelArgImpossible, part)
		case OpLT:
			op = OpLE
		case OpGT:
			op = OpGE
		}
	}
	// 前缀键列只能比较前缀，边界放宽为闭区间
	if kp.IsPrefix() {
		switch op {
		case OpLT:
			op = OpLE
		case OpGT:
			op = OpGE
		}
	}

	img := p.Arena.Alloc(kp.StoreLength)
	if img == nil {
		return nil
	}
	keycodec.StorePart(img, p.scratch, kp)

	switch op {
	case OpEQ, OpNullSafeEQ:
		return p.Arena.NewKeyRange(kp, part, img, img, 0, 0)
	case OpLT, OpLE:
		var flag basic.RangeFlag
		if op == OpLT {
			flag = basic.NearMax
		}
		if kp.MaybeNull() {
			null := p.Arena.nullImage(kp)
			if null == nil {
				return nil
			}
			return p.Arena.NewKeyRange(kp, part, null, img, basic.NearMin, flag)
		}
		return p.Arena.NewKeyRange(kp, part, nil, img, basic.NoMinRange, flag)
	case OpGT, OpGE:
		var flag basic.RangeFlag
		if op == OpGT {
			flag = basic.NearMin
		}
		return p.Arena.NewKeyRange(kp, part, img, nil, flag, basic.NoMaxRange)
	}
	return nil
}
