package scan

import (
	"iter"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/title"
)

// Scanner 枚举目录根下的 title（一级子目录名）。
//
// 规则（硬约束）：
// - 只返回目录（指向目录的符号链接也算）
// - 排除以保留前缀开头的名字与空名字（以 . 开头的目录照常返回）
// - 输出按字典序排序，保证测试与报告可复现
//
// 注意：扫描阶段只做 stat，不读取目录内容。
type Scanner struct {
	FS             afero.Fs
	Root           string
	ReservedPrefix string
}

func New(fsys afero.Fs, root, reservedPrefix string) Scanner {
	return Scanner{FS: fsys, Root: filepath.Clean(root), ReservedPrefix: reservedPrefix}
}

// Titles 一次性返回全部 title。
func (s Scanner) Titles() ([]string, error) {
	var out []string
	for name, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// All 返回惰性序列；每次 range 都会重新读取目录，因此可以重复迭代。
// 读取目录失败时只产出一次 (""，err) 并结束。
func (s Scanner) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		names, err := s.candidates()
		if err != nil {
			yield("", err)
			return
		}
		for _, name := range names {
			ok, err := s.isDir(name)
			if err != nil {
				if !yield("", err) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			if !yield(name, nil) {
				return
			}
		}
	}
}

func (s Scanner) candidates() ([]string, error) {
	d, err := s.FS.Open(s.Root)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	names, err := d.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	out := names[:0]
	for _, n := range names {
		if title.Valid(n, s.ReservedPrefix) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s Scanner) isDir(name string) (bool, error) {
	fi, err := s.FS.Stat(filepath.Join(s.Root, name))
	if err != nil {
		// 扫描过程中被删除：静默跳过。
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}
