package rangeopt

import (
	"unsafe"

	"github.com/google/uuid"
)

const (
	selArgSlab = 64
	byteSlab   = 4096
)

var selArgSize = int64(unsafe.Sizeof(SelArg{}))

// MemRoot 一次范围分析使用的内存池。SelArg 和键映像都从这里按块分配，
// 放弃一次分析时 Free 一次性丢弃全部节点
type MemRoot struct {
	ID         uuid.UUID
	Generation uint64

	limit      int64
	maxSelArgs int
	used       int64
	selArgs    int
	oom        bool

	nodes []SelArg
	bytes []byte
	slabs int
}

// NewMemRoot limit 为字节上限，maxSelArgs 为节点数上限，0 表示不限
func NewMemRoot(limit int64, maxSelArgs int) *MemRoot {
	return &MemRoot{ID: uuid.New(), limit: limit, maxSelArgs: maxSelArgs}
}

func (m *MemRoot) reserve(n int64) bool {
	if m.oom {
		return false
	}
	if m.limit > 0 && m.used+n > m.limit {
		m.oom = true
		return false
	}
	m.used += n
	return true
}

// newSelArg 分配一个清零的节点，超出限制返回 nil
func (m *MemRoot) newSelArg() *SelArg {
	if m.maxSelArgs > 0 && m.selArgs >= m.maxSelArgs {
		m.oom = true
		return nil
	}
	if len(m.nodes) == 0 {
		if !m.reserve(selArgSize * selArgSlab) {
			return nil
		}
		m.nodes = make([]SelArg, selArgSlab)
		m.slabs++
	}
	n := &m.nodes[0]
	m.nodes = m.nodes[1:]
	m.selArgs++
	n.arena = m
	return n
}

// Alloc 分配 n 字节，超出限制返回 nil
func (m *MemRoot) Alloc(n int) []byte {
	if n > len(m.bytes) {
		size := byteSlab
		if n > size {
			size = n
		}
		if !m.reserve(int64(size)) {
			return nil
		}
		m.bytes = make([]byte, size)
		m.slabs++
	}
	b := m.bytes[:n:n]
	m.bytes = m.bytes[n:]
	return b
}

// Copy 把 b 复制进内存池
func (m *MemRoot) Copy(b []byte) []byte {
	dst := m.Alloc(len(b))
	if dst != nil {
		copy(dst, b)
	}
	return dst
}

// OutOfMemory 是否曾经超出限制
func (m *MemRoot) OutOfMemory() bool {
	return m.oom
}

func (m *MemRoot) Used() int64 {
	return m.used
}

// SelArgCount 已分配的节点数
func (m *MemRoot) SelArgCount() int {
	return m.selArgs
}

// Free 丢弃全部分配，之后可以开始新一轮分析
func (m *MemRoot) Free() {
	m.nodes = nil
	m.bytes = nil
	m.used = 0
	m.selArgs = 0
	m.slabs = 0
	m.oom = false
	m.Generation++
}
