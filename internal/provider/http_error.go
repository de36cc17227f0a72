package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码（拒绝访问也归为此类）。
// 重定向由 http.Client 跟随，这里只会看到最终响应。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// BlockedError 表示请求被站点引导到了“验证/拦截”页面。不尝试绕过。
//
// 编排层把它当作普通失败（标记 visited）：站点是可达的，只是拒绝了自动请求。
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

// challengeMarkers 是人机验证页的特征片段（只匹配拦截页独有的内容）。
var challengeMarkers = []struct {
	marker []byte
	reason string
}{
	{[]byte("<title>Just a moment...</title>"), "cloudflare-challenge"},
	{[]byte("_cf_chl_opt"), "cloudflare-challenge"},
	{[]byte("Attention Required! | Cloudflare"), "cloudflare-block"},
	{[]byte("captcha-delivery.com"), "captcha"},
}

// challengePaths 是重定向后落到验证页的路径特征。
var challengePaths = []string{"/captcha", "/challenge", "/verify"}

// detectBlocked 根据重定向后的 URL 与响应体判断是否落在验证/拦截页；不是时返回 nil。
func detectBlocked(requested, finalURL string, body []byte) error {
	if u, err := url.Parse(finalURL); err == nil && finalURL != requested {
		p := strings.ToLower(u.Path)
		for _, cp := range challengePaths {
			if strings.HasPrefix(p, cp) {
				return &BlockedError{URL: finalURL, Reason: "redirect " + u.Path}
			}
		}
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(body, m.marker) {
			return &BlockedError{URL: finalURL, Reason: m.reason}
		}
	}
	return nil
}

// UnreachableError 表示完全无法连到站点（DNS 失败、连接被拒绝、TLS 握手失败），请求根本没有得到响应。
//
// 与其他失败不同：编排层不会因此标记 visited，而是在本次 run 内停止请求该 provider。
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("无法连接 %s：%v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ErrNoMatch 表示搜索结果中没有可信的候选。
var ErrNoMatch = errors.New("搜索结果中没有匹配的条目")

// AmbiguousError 表示搜索结果中有多个同样可信的候选，宁可跳过也不写错。
type AmbiguousError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("搜索 %q 得到多个候选（ambiguous）：%s", e.Query, strings.Join(e.Candidates, ", "))
}

// IsUnreachable 判断 err 是否属于“完全无法连接”。
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// classifyTransport 把 http.Client.Do 的错误归类：
// ctx 超时/取消原样返回；拨号、DNS 或 TLS 握手失败包装为 UnreachableError。
func classifyTransport(ctx context.Context, u string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if isConnectFailure(err) || isTLSFailure(err) {
		return &UnreachableError{URL: u, Err: err}
	}
	return err
}

func isConnectFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	// TLS alert 以 Op="remote error" 的 OpError 返回。
	return errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "remote error")
}

func isTLSFailure(err error) bool {
	var (
		certErr    *tls.CertificateVerificationError
		recErr     tls.RecordHeaderError
		alertErr   tls.AlertError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	return errors.As(err, &certErr) ||
		errors.As(err, &recErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
