package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/title"
)

const (
	// ErrCodeNotFound 表示既没有 --config，cwd 下也没有 config.ini / mmc.toml。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingSetting 表示必填配置项缺失。
	ErrCodeMissingSetting = "config_missing_setting"
	// ErrCodeMissingFolder 表示目录根或缩略图目录不存在。
	ErrCodeMissingFolder = "config_missing_folder"
)

const (
	DefaultConcurrency     = 1
	MaxConcurrency         = 32
	DefaultProviderTimeout = 60 * time.Second
	DefaultRequestInterval = 5 * time.Second
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0"

	// EnvStoreAddress 覆盖配置文件中的存储地址（兼容历史脚本的 DB_ADDRESS）。
	EnvStoreAddress = "DB_ADDRESS"
)

// Kind 是媒体类型；每种类型对应独立的目录根、缩略图目录与存储集合。
type Kind string

const (
	KindVideo Kind = "video"
	KindManga Kind = "manga"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo, nil
	case KindManga:
		return KindManga, nil
	default:
		return "", fmt.Errorf("媒体类型只能是 video 或 manga，实际是 %q", s)
	}
}

// DefaultProviders 是各媒体类型的默认 provider 优先级。
var DefaultProviders = map[Kind][]string{
	KindVideo: {"mal", "wikipedia", "imdb"},
	KindManga: {"mangaupdates"},
}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息，
// 保证 --dry-run=false 这类覆盖能够生效。
type CLIArgs struct {
	Kind       string
	ConfigPath string

	Concurrency    int
	ConcurrencySet bool

	DryRun    bool
	DryRunSet bool
}

// LogConfig 是日志相关的生效配置。
type LogConfig struct {
	Level string
	File  string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费）。
type EffectiveConfig struct {
	ConfigPath string
	Kind       Kind

	CatalogRoot  string `validate:"required,dir"`
	ThumbnailDir string `validate:"required,dir"`

	Required  []domain.Field
	Providers []string `validate:"required,min=1,dive,oneof=mal wikipedia imdb mangaupdates"`

	StoreURI   string `validate:"required"`
	Collection string

	UserAgent       string
	ProxyURL        string        `validate:"omitempty,url"`
	Concurrency     int           `validate:"min=1,max=32"`
	ProviderTimeout time.Duration `validate:"gt=0"`
	RequestInterval time.Duration `validate:"gte=0"`

	ReservedPrefix string
	DryRun         bool
	LocalCover     bool

	Log LogConfig
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingSetting, ErrCodeMissingFolder:
		return fmt.Sprintf("%s：配置文件 %q：%v", e.Code, e.Path, e.Err)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则依次尝试 <cwd>/config.ini、<cwd>/mmc.toml
//
// 覆盖优先级：
// - 存储地址：$DB_ADDRESS > [database] Address > <配置目录>/mmc.db（bbolt）
// - concurrency / dry-run：CLI > 配置文件 > 默认
// - 其他字段：仅由配置文件控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	kind, err := ParseKind(cli.Kind)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwdAbs, Err: err}
	}

	cfgPath, err := discover(cwdAbs, cli.ConfigPath)
	if err != nil {
		return EffectiveConfig{}, err
	}

	fc, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(kind, cfgPath, cli, fc)
}

func discover(cwdAbs, explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		p := absCleanFrom(cwdAbs, explicit)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return "", &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
			}
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		return p, nil
	}

	for _, name := range []string{"config.ini", "mmc.toml"} {
		p := filepath.Join(cwdAbs, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, "config.ini"), Err: os.ErrNotExist}
}

func merge(kind Kind, cfgPath string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	base := filepath.Dir(cfgPath)
	missing := func(section, key string) error {
		return &Error{Code: ErrCodeMissingSetting, Path: cfgPath, Err: fmt.Errorf("缺少 [%s] %s", section, key)}
	}

	var rootRaw, thumbRaw, requiredRaw, providersRaw string
	switch kind {
	case KindVideo:
		rootRaw, thumbRaw = fc.Folders.FolderVideo, fc.Folders.ThumbnailCacheVideo
		requiredRaw, providersRaw = fc.WebScraping.RequiredMetadataVideo, fc.WebScraping.ProvidersVideo
	case KindManga:
		rootRaw, thumbRaw = fc.Folders.FolderManga, fc.Folders.ThumbnailCacheManga
		requiredRaw, providersRaw = fc.WebScraping.RequiredMetadataManga, fc.WebScraping.ProvidersManga
	}
	if strings.TrimSpace(rootRaw) == "" {
		return EffectiveConfig{}, missing("folders", "Folder"+titleCase(kind))
	}
	if strings.TrimSpace(thumbRaw) == "" {
		return EffectiveConfig{}, missing("folders", "ThumbnailCache"+titleCase(kind))
	}
	if strings.TrimSpace(requiredRaw) == "" {
		return EffectiveConfig{}, missing("webscraping", "RequiredMetadata"+titleCase(kind))
	}

	required, err := domain.ParseFields(requiredRaw)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	providers := append([]string(nil), DefaultProviders[kind]...)
	if strings.TrimSpace(providersRaw) != "" {
		providers = splitList(providersRaw)
	}

	timeout, err := parseDuration(fc.WebScraping.ProviderTimeout, DefaultProviderTimeout)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("ProviderTimeout 无效：%w", err)}
	}
	interval, err := parseDuration(fc.WebScraping.RequestInterval, DefaultRequestInterval)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("RequestInterval 无效：%w", err)}
	}

	concurrency := fc.WebScraping.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}

	dryRun := fc.WebScraping.DryRun
	if cli.DryRunSet {
		dryRun = cli.DryRun
	}

	ua := strings.TrimSpace(fc.WebScraping.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}

	storeURI := strings.TrimSpace(fc.Database.Address)
	if env := strings.TrimSpace(os.Getenv(EnvStoreAddress)); env != "" {
		storeURI = env
	}
	if storeURI == "" {
		storeURI = "bolt://" + filepath.Join(base, "mmc.db")
	}
	storeURI, err = normalizeStoreURI(base, storeURI)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	reserved := fc.Folders.ReservedPrefix
	if reserved == "" {
		reserved = title.DefaultReservedPrefix
	}

	logFile := strings.TrimSpace(fc.Logging.File)
	if logFile != "" {
		logFile = absCleanFrom(base, logFile)
	}

	eff := EffectiveConfig{
		ConfigPath:      cfgPath,
		Kind:            kind,
		CatalogRoot:     absCleanFrom(base, rootRaw),
		ThumbnailDir:    absCleanFrom(base, thumbRaw),
		Required:        required,
		Providers:       providers,
		StoreURI:        storeURI,
		Collection:      string(kind),
		UserAgent:       ua,
		ProxyURL:        strings.TrimSpace(fc.WebScraping.Proxy),
		Concurrency:     concurrency,
		ProviderTimeout: timeout,
		RequestInterval: interval,
		ReservedPrefix:  reserved,
		DryRun:          dryRun,
		LocalCover:      kind == KindManga && !fc.Folders.DisableLocalCover,
		Log: LogConfig{
			Level: strings.TrimSpace(fc.Logging.Level),
			File:  logFile,
		},
	}

	if err := validate.Struct(eff); err != nil {
		return EffectiveConfig{}, mapValidationError(cfgPath, err)
	}
	return eff, nil
}

// mapValidationError 把 validator 的错误映射为稳定的 error_code（只报告第一条）。
func mapValidationError(cfgPath string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "dir":
		return &Error{Code: ErrCodeMissingFolder, Path: cfgPath, Err: fmt.Errorf("%s 配置为 %v，但该目录不存在", fe.Field(), fe.Value())}
	case "required":
		return &Error{Code: ErrCodeMissingSetting, Path: cfgPath, Err: fmt.Errorf("%s 不能为空", fe.Field())}
	case "oneof":
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("未知 provider：%v", fe.Value())}
	default:
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("%s 不合法（%s=%s）：%v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())}
	}
}

// normalizeStoreURI 把无 scheme 的地址视为 bbolt 文件路径，并把相对路径锚定到配置目录。
func normalizeStoreURI(base, raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		return "bolt://" + absCleanFrom(base, raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("存储地址无效：%w", err)
	}
	switch u.Scheme {
	case "bolt", "sqlite":
		p := strings.TrimPrefix(raw, u.Scheme+"://")
		if strings.TrimSpace(p) == "" {
			return "", fmt.Errorf("存储地址缺少文件路径：%q", raw)
		}
		return u.Scheme + "://" + absCleanFrom(base, p), nil
	case "mongodb", "mongodb+srv":
		return raw, nil
	default:
		return "", fmt.Errorf("不支持的存储类型：%q（可选 bolt/sqlite/mongodb）", u.Scheme)
	}
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func titleCase(k Kind) string {
	s := string(k)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
