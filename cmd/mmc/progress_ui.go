package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/MMC/internal/app/run"
	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出（写 stderr，不污染 stdout 的报告）。
//
// keepalive：长时间没有条目完成时定期输出一行进度。
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers    int
	done       int
	complete   int
	incomplete int
	skip       int
	fail       int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, runID string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "apply"
	if eff.DryRun {
		mode = "dry-run (不写存储/不下载缩略图)"
	}
	fmt.Fprintf(p.w, "[%s] mmc run %s (%s)\n", now.Format("15:04:05"), eff.Kind, shortID(runID))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	fmt.Fprintf(p.w, "  root: %s\n", eff.CatalogRoot)
	fmt.Fprintf(p.w, "  thumbnails: %s\n", eff.ThumbnailDir)
	fmt.Fprintf(p.w, "  store: %s (%s)\n", formatStore(eff.StoreURI), eff.Collection)
	fmt.Fprintf(p.w, "  mode: %s\n", mode)
	fmt.Fprintf(p.w, "  providers: %s\n", strings.Join(eff.Providers, " -> "))
	fmt.Fprintf(p.w, "  required: %s\n", strings.Join(fieldNames(eff.Required), ", "))
	fmt.Fprintf(p.w, "  concurrency: %d timeout: %s interval: %s\n", eff.Concurrency, eff.ProviderTimeout, eff.RequestInterval)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "exec":
		p.workers = intField(fields, "workers")
		fmt.Fprintf(p.w, "执行: workers=%d providers=%d\n\n", p.workers, intField(fields, "providers"))
		if !p.tickerStarted {
			p.startTickerLocked()
		}
	case "done":
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "\n完成: items=%d complete=%d incomplete=%d skip=%d fail=%d (%s)\n",
			intField(fields, "items"), p.complete, p.incomplete, p.skip, p.fail, formatElapsed(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	switch res.Status {
	case domain.StatusComplete:
		p.complete++
	case domain.StatusIncomplete:
		p.incomplete++
	case domain.StatusSkipped:
		p.skip++
	case domain.StatusFailed:
		p.fail++
	}

	pos := fmt.Sprintf("[%d]", idx)
	if total > 0 {
		pos = fmt.Sprintf("[%d/%d]", idx, total)
	}

	switch res.Status {
	case domain.StatusSkipped:
		fmt.Fprintf(p.w, "%s %s SKIP (已完整) (%s)\n", pos, res.Title, formatShortDuration(dur))
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "%s %s FAIL: %s (%s)\n", pos, res.Title, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	case domain.StatusComplete:
		fmt.Fprintf(p.w, "%s %s OK %s (%s)\n", pos, res.Title, formatAttemptChain(res.Attempts), formatShortDuration(dur))
	default:
		fmt.Fprintf(p.w, "%s %s MISSING=%s %s (%s)\n",
			pos, res.Title, strings.Join(res.Missing, ","), formatAttemptChain(res.Attempts), formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d complete=%d incomplete=%d skip=%d workers=%d elapsed=%s\n",
						p.done, p.complete, p.incomplete, p.skip, p.workers, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

// formatAttemptChain 把每个 provider 的结果压缩为 mal:ok,wikipedia:empty 的形式。
func formatAttemptChain(attempts []domain.ProviderAttempt) string {
	if len(attempts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Provider+":"+a.Outcome)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func fieldNames(fs []domain.Field) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, string(f))
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatStore 隐藏存储地址中的密码。
func formatStore(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
