package tree

import (
	"github.com/zhukovaskychina/xmysql-optimizer/util"
)

// DistinctCounter 统计不同键的个数。键先放进 Tree 精确去重，
// Tree 满了以后改为记录键的 xxhash，此后的结果是近似值
type DistinctCounter struct {
	tree   *Tree
	hashes map[uint64]struct{}
	total  int64
}

func NewDistinctCounter(cmp CompareFunc, memLimit int64) *DistinctCounter {
	return &DistinctCounter{tree: NewTree(cmp, memLimit, 0)}
}

// Add 计入一个键
func (d *DistinctCounter) Add(key []byte) {
	d.total++
	if d.hashes == nil {
		if d.tree.Insert(key) != nil {
			return
		}
		d.spill()
	}
	d.hashes[util.HashCode(key)] = struct{}{}
}

// spill 把已有的键转成哈希
func (d *DistinctCounter) spill() {
	d.hashes = make(map[uint64]struct{}, d.tree.ElementsInTree()*2)
	d.tree.Walk(func(e *Element) int {
		d.hashes[util.HashCode(e.Key)] = struct{}{}
		return 0
	}, LeftRootRight)
	d.tree.Reset()
}

// Exact 结果是否为精确值
func (d *DistinctCounter) Exact() bool {
	return d.hashes == nil
}

// Count 不同键的个数
func (d *DistinctCounter) Count() int64 {
	if d.hashes != nil {
		return int64(len(d.hashes))
	}
	return int64(d.tree.ElementsInTree())
}

// Total 计入的键总数
func (d *DistinctCounter) Total() int64 {
	return d.total
}

// AvgFrequency 每个不同键平均出现的次数
func (d *DistinctCounter) AvgFrequency() float64 {
	n := d.Count()
	if n == 0 {
		return 0
	}
	return float64(d.total) / float64(n)
}
