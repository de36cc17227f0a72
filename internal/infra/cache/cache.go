package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/infra/fsx"
	"github.com/John-Robertt/MMC/internal/title"
)

// Thumbnails 是缩略图缓存目录（<ThumbnailDir>/<title>.jpg）。
//
// 约束：
// - 已存在的缩略图永远不被覆盖
// - 文件名去掉 ? / \ : 字符，与历史缓存保持一致
type Thumbnails struct {
	FS  afero.Fs
	Dir string
}

func New(fsys afero.Fs, dir string) Thumbnails {
	return Thumbnails{FS: fsys, Dir: filepath.Clean(strings.TrimSpace(dir))}
}

// Path 返回 title 对应的缩略图路径（不检查是否存在）。
func (t Thumbnails) Path(name string) string {
	return filepath.Join(t.Dir, title.FileName(name))
}

func (t Thumbnails) Exists(name string) (bool, error) {
	return fsx.Exists(t.FS, t.Path(name))
}

// Target 返回 provider 可写入的缩略图路径；缩略图已存在时返回空串。
func (t Thumbnails) Target(name string) (string, error) {
	ok, err := t.Exists(name)
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	return t.Path(name), nil
}

// WriteTarget 把 JPEG 数据原子写入 target（必须位于缓存目录内）。
// target 已存在时返回 os.ErrExist。
func WriteTarget(fsys afero.Fs, target string, jpeg []byte) error {
	if strings.TrimSpace(target) == "" {
		return errors.New("缩略图目标路径为空")
	}
	return fsx.WriteFileAtomicNoOverwrite(fsys, filepath.Dir(target), filepath.Base(target), jpeg)
}

// Save 写入 title 的缩略图；已存在时静默跳过（返回 false）。
func (t Thumbnails) Save(name string, jpeg []byte) (bool, error) {
	err := WriteTarget(t.FS, t.Path(name), jpeg)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LockPath 是同一缓存目录下的运行锁文件。
func (t Thumbnails) LockPath() string {
	return filepath.Join(t.Dir, ".mmc.lock")
}
