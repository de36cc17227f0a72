package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/MMC/internal/app/run"
	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/infra/cache"
	"github.com/John-Robertt/MMC/internal/infra/httpx"
	"github.com/John-Robertt/MMC/internal/infra/imgx"
	"github.com/John-Robertt/MMC/internal/logging"
	"github.com/John-Robertt/MMC/internal/provider"
	"github.com/John-Robertt/MMC/internal/provider/imdb"
	"github.com/John-Robertt/MMC/internal/provider/mal"
	"github.com/John-Robertt/MMC/internal/provider/mangaupdates"
	"github.com/John-Robertt/MMC/internal/provider/wikipedia"
	"github.com/John-Robertt/MMC/internal/store"
	"github.com/John-Robertt/MMC/internal/store/boltstore"
	"github.com/John-Robertt/MMC/internal/store/mongostore"
	"github.com/John-Robertt/MMC/internal/store/sqlitestore"
)

// env 是子命令共享的运行环境：生效配置、文件系统与已打开的存储。
type env struct {
	eff   config.EffectiveConfig
	fs    afero.Fs
	store store.Store
}

func loadEnv(cmd *cobra.Command, g *globalFlags, cli config.CLIArgs) (*env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cli.ConfigPath = g.configPath
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Options{
		Level:   eff.Log.Level,
		File:    eff.Log.File,
		Console: cmd.ErrOrStderr(),
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败：%w", err)
	}

	st, err := openStore(cmd.Context(), eff.StoreURI, eff.Collection)
	if err != nil {
		return nil, err
	}
	return &env{eff: eff, fs: afero.NewOsFs(), store: st}, nil
}

func (e *env) Close() error { return e.store.Close() }

// lock 取得与 run 相同的进程锁：写同一集合的子命令不能并发执行。
func (e *env) lock() (func() error, error) {
	return run.Lock(cache.New(e.fs, e.eff.ThumbnailDir).LockPath())
}

// openStore 按 URI scheme 选择存储实现：bolt:// sqlite:// mongodb://。
func openStore(ctx context.Context, uri, collection string) (store.Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("存储地址无效：%w", err)
	}
	switch u.Scheme {
	case "bolt":
		return boltstore.Open(strings.TrimPrefix(uri, "bolt://"), collection)
	case "sqlite":
		return sqlitestore.Open(strings.TrimPrefix(uri, "sqlite://"), collection)
	case "mongodb", "mongodb+srv":
		return mongostore.Open(ctx, uri, collection)
	default:
		return nil, fmt.Errorf("不支持的存储类型：%q", u.Scheme)
	}
}

// buildRegistry 注册全部站点 provider；实际调用顺序由配置中的 provider 列表决定。
func buildRegistry(eff config.EffectiveConfig, fsys afero.Fs) (provider.Registry, error) {
	opts := httpx.Options{ProxyURL: eff.ProxyURL, UserAgent: eff.UserAgent, Timeout: eff.ProviderTimeout}
	meta, err := httpx.NewMetaClient(opts)
	if err != nil {
		return provider.Registry{}, fmt.Errorf("proxy 无效：%w", err)
	}
	images, err := httpx.NewImageClient(opts)
	if err != nil {
		return provider.Registry{}, fmt.Errorf("proxy 无效：%w", err)
	}

	c := &provider.Client{
		HTTP:     meta,
		Images:   images,
		Limiters: httpx.NewLimiters(eff.RequestInterval),
		FS:       fsys,
		MaxEdge:  imgx.DefaultMaxEdge,
		DryRun:   eff.DryRun,
	}
	return provider.NewRegistry(
		mal.Provider{Client: c},
		wikipedia.Provider{Client: c},
		imdb.Provider{Client: c},
		mangaupdates.Provider{Client: c},
	)
}
