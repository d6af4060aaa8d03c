package util

// 小端整数读写，与记录格式中的整型存储保持一致

func WriteUB2At(buf []byte, i uint16) {
	buf[0] = byte(i)
	buf[1] = byte(i >> 8)
}

func ReadUB2(buf []byte) uint16 {
	return uint16(buf[0]) | uint16(buf[1])<<8
}

// WriteUintN 把 v 的低 n 个字节以小端写入 buf
func WriteUintN(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

// ReadUintN 读取 n 个字节的小端无符号整数
func ReadUintN(buf []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// ReadIntN 读取 n 个字节的小端有符号整数，按最高位做符号扩展
func ReadIntN(buf []byte, n int) int64 {
	v := ReadUintN(buf, n)
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift
}

// Fill 用 b 填满 buf
func Fill(buf []byte, b byte) {
	for i := range buf {
		buf[i] = b
	}
}

// AllBytesAre 判断 buf 是否全部由 b 组成
func AllBytesAre(buf []byte, b byte) bool {
	for _, c := range buf {
		if c != b {
			return false
		}
	}
	return true
}
