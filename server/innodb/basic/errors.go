package basic

import (
	"errors"
	"fmt"
)

// HAError 存储引擎返回的错误码，游标原样返回，调用方用 == 比较
type HAError int

const (
	HaErrKeyNotFound   HAError = 120
	HaErrWrongIndex    HAError = 124
	HaErrOutOfMem      HAError = 128
	HaErrWrongCommand  HAError = 131
	HaErrRecordDeleted HAError = 134
	HaErrEndOfFile     HAError = 137
)

var haErrorNames = map[HAError]string{
	HaErrKeyNotFound:   "HA_ERR_KEY_NOT_FOUND",
	HaErrWrongIndex:    "HA_ERR_WRONG_INDEX",
	HaErrOutOfMem:      "HA_ERR_OUT_OF_MEM",
	HaErrWrongCommand:  "HA_ERR_WRONG_COMMAND",
	HaErrRecordDeleted: "HA_ERR_RECORD_DELETED",
	HaErrEndOfFile:     "HA_ERR_END_OF_FILE",
}

func (e HAError) Error() string {
	if name, ok := haErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("handler error %d", int(e))
}

// IsEndOfScan 扫描正常结束：没有更多记录或没有匹配的键
func IsEndOfScan(err error) bool {
	return err == HaErrEndOfFile || err == HaErrKeyNotFound
}

// 索引相关错误
var (
	ErrIndexNotFound = errors.New("index not found")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrInvalidKey    = errors.New("invalid key")
)

// 系统错误
var (
	ErrNotImplemented   = errors.New("not implemented")
	ErrInvalidParameter = errors.New("invalid parameter")
)
