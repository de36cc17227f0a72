package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/infra/cache"
	"github.com/John-Robertt/MMC/internal/infra/httpx"
	"github.com/John-Robertt/MMC/internal/infra/imgx"
)

// maxBodyBytes 限制单次响应体大小，避免异常页面拖垮内存。
const maxBodyBytes = 8 << 20

// Client 是各站点 provider 共享的网络与落盘能力。
//
// - 每个 provider 的请求都先经过 Limiters（同一站点的请求间隔）
// - 缩略图统一转为 JPEG 后原子写入，已存在时不覆盖
// - DryRun=true 时不写缩略图
type Client struct {
	HTTP     *http.Client
	Images   *http.Client
	Limiters *httpx.Limiters
	FS       afero.Fs
	MaxEdge  int
	DryRun   bool
}

// Document 请求 rawURL 并解析为 goquery 文档，返回最终 URL（跟随重定向之后）。
//
// 落在验证/拦截页时返回 *BlockedError（即使状态码是 200）。
func (c *Client) Document(ctx context.Context, provider, rawURL string) (*goquery.Document, string, error) {
	body, final, err := c.get(ctx, c.HTTP, provider, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	b, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, "", err
	}
	if err := detectBlocked(rawURL, final, b); err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, "", err
	}
	return doc, final, nil
}

// SaveThumbnail 下载 imgURL 并写入 target。target 为空或 DryRun 时什么都不做。
func (c *Client) SaveThumbnail(ctx context.Context, provider, imgURL, target string) error {
	if strings.TrimSpace(target) == "" || c.DryRun {
		return nil
	}
	if strings.TrimSpace(imgURL) == "" {
		return errors.New("页面中没有缩略图地址")
	}

	hc := c.Images
	if hc == nil {
		hc = c.HTTP
	}
	body, _, err := c.get(ctx, hc, provider, imgURL)
	if err != nil {
		return err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return err
	}
	maxEdge := c.MaxEdge
	if maxEdge == 0 {
		maxEdge = imgx.DefaultMaxEdge
	}
	jpeg, err := imgx.ThumbnailJPEG(raw, maxEdge)
	if err != nil {
		return fmt.Errorf("缩略图解码失败：%w", err)
	}
	if err := cache.WriteTarget(c.fs(), target, jpeg); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

// Thumbnail 是 SaveThumbnail 的“尽力而为”版本：失败只记 warning，不影响字段结果。
func (c *Client) Thumbnail(ctx context.Context, provider, imgURL, target string) {
	if err := c.SaveThumbnail(ctx, provider, imgURL, target); err != nil {
		log.Warn().Err(err).Str("provider", provider).Str("target", target).Msg("缩略图下载失败")
	}
}

func (c *Client) fs() afero.Fs {
	if c.FS == nil {
		return afero.NewOsFs()
	}
	return c.FS
}

func (c *Client) get(ctx context.Context, hc *http.Client, provider, rawURL string) (io.ReadCloser, string, error) {
	if hc == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if err := c.Limiters.Wait(ctx, provider); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", classifyTransport(ctx, rawURL, err)
	}
	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		// 拦截页通常带 403/503，先看内容再决定是 blocked 还是普通的状态码错误。
		head, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := detectBlocked(rawURL, final, head); err != nil {
			return nil, "", err
		}
		return nil, "", &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp.Body, final, nil
}

// ResolveURL 把页面内的相对链接解析为绝对地址。
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
