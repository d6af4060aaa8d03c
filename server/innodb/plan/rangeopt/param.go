package rangeopt

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/zhukovaskychina/xmysql-optimizer/logger"
	"github.com/zhukovaskychina/xmysql-optimizer/server/conf"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// Stats 可选的索引统计，Cardinality 返回前 parts 个键列的不同值个数，未知返回 0
type Stats interface {
	Cardinality(idx int, parts int) int64
}

// Param 一次范围分析的上下文
type Param struct {
	Share  *metadata.TableShare
	Arena  *MemRoot
	Switch conf.OptimizerSwitch

	// Usable 参与分析的索引，nil 表示全部
	Usable *roaring.Bitmap
	// ReadSet 查询需要读取的列，nil 表示全部列
	ReadSet *roaring.Bitmap
	Stats   Stats
	Cost    *CostModel

	QueryID string

	// scratch 把常量转换为键映像时使用的记录缓冲区
	scratch metadata.Record
}

// NewParam 按开关创建分析上下文和它的内存池
func NewParam(share *metadata.TableShare, sw conf.OptimizerSwitch) *Param {
	p := &Param{
		Share:   share,
		Arena:   NewMemRoot(sw.MaxMemSize, sw.MaxSelArgs),
		Switch:  sw,
		Cost:    NewDefaultCostModel(),
		scratch: share.NewRecord(),
	}
	p.QueryID = p.Arena.ID.String()
	return p
}

func (p *Param) newTree(t SelTreeType) *SelTree {
	return NewSelTree(t, len(p.Share.Keys))
}

func (p *Param) usable(idx int) bool {
	return p.Usable == nil || p.Usable.Contains(uint32(idx))
}

// readsColumn 查询是否读取这一列
func (p *Param) readsColumn(nr int) bool {
	return p.ReadSet == nil || p.ReadSet.Contains(uint32(nr))
}

func (p *Param) debugf(format string, args ...interface{}) {
	if logger.DebugEnabled() {
		logger.WithQuery(p.QueryID).Debugf(format, args...)
	}
}
