package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewMetaClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewMetaClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive")
	}
}

func TestNewMetaClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewMetaClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if c.Timeout != defaultTimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", defaultTimeout, c.Timeout)
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, err := NewMetaClient(Options{UserAgent: "mmc-test/1.0"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()
	if got != "mmc-test/1.0" {
		t.Fatalf("期望固定 UA，实际 %q", got)
	}

	c2, _ := NewMetaClient(Options{})
	resp, err = c2.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()
	if got == "" {
		t.Fatalf("期望使用 UA 池中的 UA")
	}
}

func TestLimiters_SpacesRequestsPerProvider(t *testing.T) {
	l := NewLimiters(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "mal"); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	if el := time.Since(start); el < 90*time.Millisecond {
		t.Fatalf("期望至少间隔 2 个 interval，实际 %v", el)
	}

	// 不同 provider 互不影响。
	start = time.Now()
	if err := l.Wait(ctx, "imdb"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if el := time.Since(start); el > 40*time.Millisecond {
		t.Fatalf("新 provider 的首个请求不应等待，实际 %v", el)
	}
}

func TestLimiters_CanceledContext(t *testing.T) {
	l := NewLimiters(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx, "mal"); err != nil {
		t.Fatalf("首个请求不应等待：%v", err)
	}
	cancel()
	if err := l.Wait(ctx, "mal"); err == nil {
		t.Fatalf("期望 ctx 取消后返回错误")
	}
}

func TestLimiters_Disabled(t *testing.T) {
	var l *Limiters
	if err := l.Wait(context.Background(), "x"); err != nil {
		t.Fatalf("nil Limiters 不应报错：%v", err)
	}
}
