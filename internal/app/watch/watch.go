// Package watch 在目录根出现新条目时触发补全，也可以按 cron 表达式定期全量运行。
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/MMC/internal/title"
)

// DefaultDebounce 是新目录出现后等待其内容复制完成的时间。
const DefaultDebounce = 5 * time.Second

// RunFunc 执行一次补全；titles 为 nil 表示全量运行。
type RunFunc func(ctx context.Context, titles []string) error

// Watcher 串行执行由文件事件或定时器触发的 run。
//
// 约束：
// - 同一时刻最多一个 run；run 期间到达的请求合并为下一次
// - 只关心目录根下直接新建（或移入）的目录
type Watcher struct {
	Root           string
	ReservedPrefix string
	Cron           string
	Debounce       time.Duration
	Run            RunFunc

	mu      sync.Mutex
	pending map[string]bool
	full    bool
	timer   *time.Timer
	wake    chan struct{}
}

// ValidateCron 检查 5 段标准 cron 表达式（支持 @every / @daily 等描述符）。
func ValidateCron(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("cron 表达式 %q 无效：%w", spec, err)
	}
	return nil
}

// Watch 阻塞直到 ctx 取消；RunFunc 返回的错误会中止 Watch。
func (w *Watcher) Watch(ctx context.Context) error {
	if w.Run == nil {
		return errors.New("watch：RunFunc 为空")
	}
	if err := ValidateCron(w.Cron); err != nil {
		return err
	}
	if w.Debounce <= 0 {
		w.Debounce = DefaultDebounce
	}
	w.pending = map[string]bool{}
	w.wake = make(chan struct{}, 1)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.Root); err != nil {
		fw.Close()
		return fmt.Errorf("监听 %s 失败：%w", w.Root, err)
	}

	if w.Cron != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.Cron, w.requestFull); err != nil {
			fw.Close()
			return err
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		log.Info().Str("cron", w.Cron).Msg("已启用定时全量运行")
	}
	log.Info().Str("root", w.Root).Msg("开始监听新条目")

	events := make(chan struct{})
	go func() {
		defer close(events)
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				w.handle(ev)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("文件监听错误")
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		fw.Close()
		<-events
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.wake:
		}
		titles, full := w.take()
		if !full && len(titles) == 0 {
			continue
		}
		if full {
			titles = nil
		}
		if err := w.Run(ctx, titles); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle 只记录符合条件的新目录；真正的 run 在防抖结束后触发。
func (w *Watcher) handle(ev fsnotify.Event) {
	name, ok := w.titleOf(ev)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, w.signal)
}

func (w *Watcher) titleOf(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	if filepath.Dir(filepath.Clean(ev.Name)) != filepath.Clean(w.Root) {
		return "", false
	}
	name := filepath.Base(ev.Name)
	if !title.Valid(name, w.ReservedPrefix) {
		return "", false
	}
	fi, err := os.Stat(ev.Name)
	if err != nil || !fi.IsDir() {
		return "", false
	}
	return name, true
}

func (w *Watcher) requestFull() {
	w.mu.Lock()
	w.full = true
	w.mu.Unlock()
	w.signal()
}

func (w *Watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) take() ([]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	titles := make([]string, 0, len(w.pending))
	for t := range w.pending {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	full := w.full
	w.pending = map[string]bool{}
	w.full = false
	return titles, full
}
