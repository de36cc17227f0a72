package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/MMC/internal/config"
)

// globalFlags 是所有子命令共享的参数。
type globalFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "mmc",
		Short:         "为媒体目录补全元数据（MAL / Wikipedia / IMDB / MangaUpdates）",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("未知命令：%q", args[0])}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "配置文件路径（默认 ./config.ini 或 ./mmc.toml）")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newRunCommand(g),
		newBackfillCommand(g),
		newImportCommand(g),
		newFixDescriptionsCommand(g),
		newWatchCommand(g),
	)
	return root
}

// kindArg 校验唯一的位置参数 <video|manga>。
func kindArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError{fmt.Errorf("%s 需要一个媒体类型参数：video 或 manga", cmd.CommandPath())}
	}
	if _, err := config.ParseKind(args[0]); err != nil {
		return usageError{err}
	}
	return nil
}
