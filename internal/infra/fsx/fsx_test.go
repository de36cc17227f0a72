package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func noTemp(t *testing.T, fsys afero.Fs, dir, name string) {
	t.Helper()
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "."+name+".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomicReplace_SuccessAndNoTempLeft(t *testing.T) {
	for name, fsys := range map[string]afero.Fs{"mem": afero.NewMemMapFs(), "os": afero.NewOsFs()} {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "sub")

			if err := WriteFileAtomicReplace(fsys, dir, "a.txt", []byte("hello")); err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
			if err := WriteFileAtomicReplace(fsys, dir, "a.txt", []byte("world")); err != nil {
				t.Fatalf("覆盖写入不期望错误：%v", err)
			}

			b, err := afero.ReadFile(fsys, filepath.Join(dir, "a.txt"))
			if err != nil {
				t.Fatalf("读取文件失败：%v", err)
			}
			if string(b) != "world" {
				t.Fatalf("内容不一致：%q", string(b))
			}
			noTemp(t, fsys, dir, "a.txt")
		})
	}
}

func TestWriteFileAtomicNoOverwrite_Exists(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := "/thumbs"
	if err := WriteFileAtomicNoOverwrite(fsys, dir, "Akira.jpg", []byte("1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(fsys, dir, "Akira.jpg", []byte("2"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际 %v", err)
	}
	b, _ := afero.ReadFile(fsys, "/thumbs/Akira.jpg")
	if string(b) != "1" {
		t.Fatalf("已有文件被覆盖：%q", string(b))
	}
}

func TestWriteFileAtomicNoOverwrite_DirConflict(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/thumbs/Akira.jpg", 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(fsys, "/thumbs", "Akira.jpg", []byte("1"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际 %v", err)
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	fsys := afero.NewMemMapFs()

	old := renameFunc
	renameFunc = func(afero.Fs, string, string) error { return os.ErrPermission }
	defer func() { renameFunc = old }()

	if err := WriteFileAtomicReplace(fsys, "/d", "a.txt", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}
	noTemp(t, fsys, "/d", "a.txt")
	if ok, _ := afero.Exists(fsys, "/d/a.txt"); ok {
		t.Fatalf("rename 失败时不应出现目标文件")
	}
}

func TestEnsureDirAndExists(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/f", []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if err := EnsureDir(fsys, "/f"); !IsPathTypeConflict(err) {
		t.Fatalf("期望类型冲突，实际 %v", err)
	}
	if err := EnsureDir(fsys, "/a/b"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	ok, err := Exists(fsys, "/f")
	if err != nil || !ok {
		t.Fatalf("期望文件存在：ok=%v err=%v", ok, err)
	}
	ok, err = Exists(fsys, "/missing")
	if err != nil || ok {
		t.Fatalf("期望文件不存在：ok=%v err=%v", ok, err)
	}
	if _, err := Exists(fsys, "/a/b"); !IsPathTypeConflict(err) {
		t.Fatalf("目录应报类型冲突，实际 %v", err)
	}
}
