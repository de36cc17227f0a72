package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"
)

// FileConfig 对应 config.ini / mmc.toml 的解析结构。
//
// config.ini 沿用历史脚本的分节与键名；mmc.toml 使用相同分节、snake_case 键名。
type FileConfig struct {
	Folders     FoldersSection     `toml:"folders"`
	WebScraping WebScrapingSection `toml:"webscraping"`
	Database    DatabaseSection    `toml:"database"`
	Logging     LoggingSection     `toml:"logging"`
}

type FoldersSection struct {
	FolderVideo         string `ini:"FolderVideo" toml:"folder_video"`
	ThumbnailCacheVideo string `ini:"ThumbnailCacheVideo" toml:"thumbnail_cache_video"`
	FolderManga         string `ini:"FolderManga" toml:"folder_manga"`
	ThumbnailCacheManga string `ini:"ThumbnailCacheManga" toml:"thumbnail_cache_manga"`
	ReservedPrefix      string `ini:"ReservedPrefix" toml:"reserved_prefix"`
	DisableLocalCover   bool   `ini:"DisableLocalCover" toml:"disable_local_cover"`
}

type WebScrapingSection struct {
	RequiredMetadataVideo string `ini:"RequiredMetadataVideo" toml:"required_metadata_video"`
	RequiredMetadataManga string `ini:"RequiredMetadataManga" toml:"required_metadata_manga"`
	ProvidersVideo        string `ini:"ProvidersVideo" toml:"providers_video"`
	ProvidersManga        string `ini:"ProvidersManga" toml:"providers_manga"`
	UserAgent             string `ini:"UserAgent" toml:"user_agent"`
	Proxy                 string `ini:"Proxy" toml:"proxy"`
	RequestInterval       string `ini:"RequestInterval" toml:"request_interval"`
	ProviderTimeout       string `ini:"ProviderTimeout" toml:"provider_timeout"`
	Concurrency           int    `ini:"Concurrency" toml:"concurrency"`
	DryRun                bool   `ini:"DryRun" toml:"dry_run"`
}

type DatabaseSection struct {
	Address string `ini:"Address" toml:"address"`
}

type LoggingSection struct {
	Level string `ini:"Level" toml:"level"`
	File  string `ini:"File" toml:"file"`
}

// readFileConfig 按扩展名选择解析器：.toml 走 go-toml，其余按 ini 解析。
func readFileConfig(path string) (FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return parseTOML(b)
	}
	return parseINI(b)
}

func parseTOML(b []byte) (FileConfig, error) {
	var fc FileConfig
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

func parseINI(b []byte) (FileConfig, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		// 历史配置里的描述性值可能含有 # 或 ;，不作为行内注释处理。
		IgnoreInlineComment: true,
	}, b)
	if err != nil {
		return FileConfig{}, err
	}

	var fc FileConfig
	sections := []struct {
		name string
		dst  any
	}{
		{"folders", &fc.Folders},
		{"webscraping", &fc.WebScraping},
		{"database", &fc.Database},
		{"logging", &fc.Logging},
	}
	for _, s := range sections {
		if !f.HasSection(s.name) {
			continue
		}
		if err := f.Section(s.name).MapTo(s.dst); err != nil {
			return FileConfig{}, fmt.Errorf("[%s]：%w", s.name, err)
		}
	}
	return fc, nil
}
