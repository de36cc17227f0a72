package cover

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/infra/cache"
	"github.com/John-Robertt/MMC/internal/infra/imgx"
)

// ErrNoPage 表示条目目录里找不到可用作封面的页面。
var ErrNoPage = errors.New("没有可用的封面页")

// Local 用条目自身的第一页生成缩略图（漫画专用）。
//
// 约束：
// - 只看按名称排序后的第一个卷目录与其中的第一个文件，不做回溯
// - 缩略图已存在时不读取任何页面
type Local struct {
	FS      afero.Fs
	Root    string
	Thumbs  cache.Thumbnails
	MaxEdge int
}

// Ensure 在缩略图缺失时写入本地封面。返回是否写入了新文件。
func (l Local) Ensure(title string) (bool, error) {
	ok, err := l.Thumbs.Exists(title)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	page, err := FirstPage(l.FS, filepath.Join(l.Root, title))
	if err != nil {
		return false, err
	}
	raw, err := afero.ReadFile(l.FS, page)
	if err != nil {
		return false, err
	}
	maxEdge := l.MaxEdge
	if maxEdge == 0 {
		maxEdge = imgx.DefaultMaxEdge
	}
	jpeg, err := imgx.ThumbnailJPEG(raw, maxEdge)
	if err != nil {
		return false, fmt.Errorf("封面 %s 无法解码：%w", page, err)
	}
	return l.Thumbs.Save(title, jpeg)
}

// FirstPage 返回 dir 下第一个卷目录中排序最前的文件。
func FirstPage(fsys afero.Fs, dir string) (string, error) {
	vol, isDir, err := first(fsys, dir)
	if err != nil {
		return "", err
	}
	if !isDir {
		return "", ErrNoPage
	}
	volDir := filepath.Join(dir, vol)
	page, isDir, err := first(fsys, volDir)
	if err != nil {
		return "", err
	}
	if isDir {
		return "", ErrNoPage
	}
	return filepath.Join(volDir, page), nil
}

func first(fsys afero.Fs, dir string) (string, bool, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return "", false, err
	}
	names := make([]string, 0, len(infos))
	dirs := make(map[string]bool, len(infos))
	for _, fi := range infos {
		// 隐藏文件（.DS_Store 等）不算页面。
		if strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		names = append(names, fi.Name())
		dirs[fi.Name()] = fi.IsDir()
	}
	if len(names) == 0 {
		return "", false, ErrNoPage
	}
	sort.Strings(names)
	return names[0], dirs[names[0]], nil
}
