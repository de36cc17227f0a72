package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked 表示同一缓存目录已有另一个 run 在执行。
var ErrLocked = errors.New("另一个 mmc 进程正在处理同一媒体类型")

// Lock 获取 path 上的进程锁；返回的 unlock 必须调用。
func Lock(path string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取运行锁 %s 失败：%w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w（%s）", ErrLocked, path)
	}
	return fl.Unlock, nil
}
