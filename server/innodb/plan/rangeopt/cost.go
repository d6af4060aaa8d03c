package rangeopt

import "math"

const pageSize = 16 * 1024

// CostModel 代价模型
type CostModel struct {
	// IO相关参数
	DiskSeekCost float64 // 磁盘寻道代价
	DiskReadCost float64 // 磁盘读取代价(每页)

	// CPU相关参数
	CPUTupleCost float64 // CPU处理元组代价(每个)
	CPUIndexCost float64 // CPU索引扫描代价(每次)

	// 内存相关参数
	MemorySortCost float64 // 内存排序代价(每个)

	// 缓存相关参数
	BufferHitRatio float64 // 缓存命中率
}

// NewDefaultCostModel 创建默认代价模型
func NewDefaultCostModel() *CostModel {
	return &CostModel{
		DiskSeekCost: 10.0,
		DiskReadCost: 1.0,

		CPUTupleCost: 0.01,
		CPUIndexCost: 0.05,

		MemorySortCost: 0.1,

		BufferHitRatio: 0.8,
	}
}

func (c *CostModel) miss() float64 {
	return 1 - c.BufferHitRatio
}

func pages(rows int64, rowSize int) float64 {
	return math.Ceil(float64(rows) * float64(rowSize) / pageSize)
}

// TableScanCost 全表扫描
func (c *CostModel) TableScanCost(rows int64, recLength int) float64 {
	// 1. IO代价
	ioCost := c.DiskSeekCost + pages(rows, recLength)*c.DiskReadCost*c.miss()
	// 2. CPU代价
	cpuCost := float64(rows) * c.CPUTupleCost
	return ioCost + cpuCost
}

// RangeScanCost 在索引上扫描 ranges 个区间共 rows 行，不覆盖时每行回表一次
func (c *CostModel) RangeScanCost(ranges int, rows int64, keyLength int, covering bool) float64 {
	// 1. 每个区间一次定位
	ioCost := float64(ranges) * c.DiskSeekCost * c.miss()
	ioCost += pages(rows, keyLength) * c.DiskReadCost * c.miss()
	cpuCost := float64(rows) * c.CPUIndexCost
	if !covering {
		// 2. 回表
		ioCost += float64(rows) * c.DiskReadCost * c.miss()
		cpuCost += float64(rows) * c.CPUTupleCost
	}
	return ioCost + cpuCost
}

// IndexMergeCost 各索引扫描之后按行号排序去重再回表
func (c *CostModel) IndexMergeCost(scanCost float64, rows int64) float64 {
	sortCost := float64(rows) * c.MemorySortCost
	fetchCost := float64(rows) * (c.DiskReadCost*c.miss() + c.CPUTupleCost)
	return scanCost + sortCost + fetchCost
}

// GroupMinMaxCost 每组一到两次索引定位
func (c *CostModel) GroupMinMaxCost(groups int64, rows int64, keyLength int, both bool) float64 {
	probes := float64(groups)
	if both {
		probes *= 2
	}
	blocks := math.Min(probes, pages(rows, keyLength)+1)
	ioCost := c.DiskSeekCost*c.miss() + blocks*c.DiskReadCost*c.miss()
	cpuCost := probes*c.CPUIndexCost + float64(groups)*c.CPUTupleCost
	return ioCost + cpuCost
}
