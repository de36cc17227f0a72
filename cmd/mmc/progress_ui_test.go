package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
)

func TestFormatAttemptChain(t *testing.T) {
	got := formatAttemptChain([]domain.ProviderAttempt{
		{Provider: "mal", Outcome: domain.OutcomeSkippedVisited},
		{Provider: "wikipedia", Outcome: domain.OutcomeOK},
	})
	if got != "[mal:skipped_visited,wikipedia:ok]" {
		t.Fatalf("attempt chain 不符合预期：%q", got)
	}
	if formatAttemptChain(nil) != "" {
		t.Fatalf("期望空 attempt chain")
	}
}

func TestFormatStore_HidesPassword(t *testing.T) {
	got := formatStore("mongodb://user:secret@db:27017/?authSource=admin")
	if strings.Contains(got, "secret") {
		t.Fatalf("密码未被隐藏：%q", got)
	}
	if got := formatStore("bolt:///tmp/mmc.db"); got != "bolt:///tmp/mmc.db" {
		t.Fatalf("期望原样输出，实际 %q", got)
	}
}

func TestFormatProxy(t *testing.T) {
	if got := formatProxy(""); got != "off" {
		t.Fatalf("期望 off，实际 %q", got)
	}
	if got := formatProxy("http://u:p@127.0.0.1:7890"); got != "on (http://127.0.0.1:7890, auth=on)" {
		t.Fatalf("proxy 格式不符合预期：%q", got)
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(3723 * time.Second); got != "01:02:03" {
		t.Fatalf("期望 01:02:03，实际 %q", got)
	}
	if got := formatElapsed(-time.Second); got != "00:00:00" {
		t.Fatalf("负数应归零，实际 %q", got)
	}
}

func TestProgressUI_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	p.OnStart(config.EffectiveConfig{
		Kind:      config.KindVideo,
		Providers: []string{"mal", "wikipedia"},
		Required:  []domain.Field{domain.FieldDescription},
		StoreURI:  "bolt:///tmp/mmc.db",
	}, "0123456789abcdef")
	p.OnPhaseDone("exec", map[string]any{"workers": 2, "providers": 2}, 0)
	p.OnItemDone(1, 0, domain.ItemResult{Title: "Akira", Status: domain.StatusSkipped}, time.Second)
	p.OnItemDone(2, 0, domain.ItemResult{
		Title:   "Berserk",
		Status:  domain.StatusIncomplete,
		Missing: []string{"studio"},
	}, time.Second)
	p.OnPhaseDone("done", map[string]any{"items": 2}, 2*time.Second)

	out := buf.String()
	for _, want := range []string{
		"mmc run video (01234567)",
		"providers: mal -> wikipedia",
		"[1] Akira SKIP",
		"[2] Berserk MISSING=studio",
		"完成: items=2 complete=0 incomplete=1 skip=1 fail=0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
}
