package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/MMC/internal/app/backfill"
	"github.com/John-Robertt/MMC/internal/app/fixdesc"
	"github.com/John-Robertt/MMC/internal/app/importer"
	"github.com/John-Robertt/MMC/internal/app/run"
	"github.com/John-Robertt/MMC/internal/app/watch"
	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/logging"
	"github.com/John-Robertt/MMC/internal/report"
)

type runFlags struct {
	concurrency int
	dryRun      bool
	format      string
	reportFile  string
}

func (f *runFlags) cliArgs(cmd *cobra.Command, kind string) config.CLIArgs {
	return config.CLIArgs{
		Kind:           kind,
		Concurrency:    f.concurrency,
		ConcurrencySet: cmd.Flags().Changed("concurrency"),
		DryRun:         f.dryRun,
		DryRunSet:      cmd.Flags().Changed("dry-run"),
	}
}

func newRunCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <video|manga>",
		Short: "补全目录中不完整的元数据并写回存储",
		Args:  kindArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(f.format)
			if err != nil {
				return usageError{err}
			}
			e, err := loadEnv(cmd, g, f.cliArgs(cmd, args[0]))
			if err != nil {
				return err
			}
			defer e.Close()

			unlock, err := e.lock()
			if err != nil {
				return err
			}
			defer unlock()

			deps, err := e.runDeps(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rr, runErr := run.Execute(cmd.Context(), e.eff, deps)
			if err := emit(cmd.OutOrStdout(), e, rr, format, f.reportFile); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "并行处理的记录数（1-32，默认读配置，否则 1）")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "只查询 provider，不写存储、不下载缩略图")
	cmd.Flags().StringVar(&f.format, "format", "text", "报告格式：text|table|json|csv")
	cmd.Flags().StringVar(&f.reportFile, "report-file", "", "同时把报告原子写入该文件")
	return cmd
}

func (e *env) runDeps(stderr io.Writer) (run.Deps, error) {
	reg, err := buildRegistry(e.eff, e.fs)
	if err != nil {
		return run.Deps{}, err
	}
	deps := run.Deps{FS: e.fs, Store: e.store, Registry: reg, Clock: clockwork.NewRealClock()}
	if logging.IsTerminal(stderr) {
		deps.Observer = newProgressUI(stderr)
	}
	return deps, nil
}

func emit(w io.Writer, e *env, rr domain.RunReport, format report.Format, reportFile string) error {
	if err := report.Write(w, rr, format); err != nil {
		return err
	}
	if reportFile == "" {
		return nil
	}
	return report.WriteFile(e.fs, reportFile, rr, format)
}

func newBackfillCommand(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "backfill-dates <video|manga>",
		Short: "用目录修改时间补写缺失的 dateAdded",
		Args:  kindArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, g, config.CLIArgs{Kind: args[0]})
			if err != nil {
				return err
			}
			defer e.Close()

			unlock, err := e.lock()
			if err != nil {
				return err
			}
			defer unlock()

			changes, err := backfill.Dates(cmd.Context(), e.fs, e.eff.CatalogRoot, e.eff.ReservedPrefix, e.store, dryRun)
			for _, c := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Title, c.DateAdded.Format(time.RFC3339))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "补写 dateAdded：%d 条\n", len(changes))
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只列出将被补写的记录")
	return cmd
}

func newImportCommand(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <video|manga>",
		Short: "把旧版 info.meta 文件导入存储（已存在的 key 跳过）",
		Args:  kindArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, g, config.CLIArgs{Kind: args[0]})
			if err != nil {
				return err
			}
			defer e.Close()

			unlock, err := e.lock()
			if err != nil {
				return err
			}
			defer unlock()

			titles, err := importer.Importer{
				FS:             e.fs,
				Root:           e.eff.CatalogRoot,
				ReservedPrefix: e.eff.ReservedPrefix,
				Store:          e.store,
				DryRun:         dryRun,
			}.Run(cmd.Context())
			for _, t := range titles {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "导入：%d 条\n", len(titles))
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只列出将被导入的条目")
	return cmd
}

func newFixDescriptionsCommand(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "fix-descriptions <video|manga>",
		Short: "修正被重复拼接三次的 description",
		Args:  kindArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, g, config.CLIArgs{Kind: args[0]})
			if err != nil {
				return err
			}
			defer e.Close()

			unlock, err := e.lock()
			if err != nil {
				return err
			}
			defer unlock()

			changes, err := fixdesc.Descriptions(cmd.Context(), e.store, dryRun)
			for _, c := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d -> %d\n", c.Title, c.Before, c.After)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "修正 description：%d 条\n", len(changes))
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只列出将被修正的记录")
	return cmd
}

func newWatchCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	var (
		cronSpec string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <video|manga>",
		Short: "监听目录根，新条目出现时补全；可按 cron 定期全量运行",
		Args:  kindArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(f.format)
			if err != nil {
				return usageError{err}
			}
			if err := watch.ValidateCron(cronSpec); err != nil {
				return usageError{err}
			}
			e, err := loadEnv(cmd, g, f.cliArgs(cmd, args[0]))
			if err != nil {
				return err
			}
			defer e.Close()

			unlock, err := e.lock()
			if err != nil {
				return err
			}
			defer unlock()

			// watch 模式下进度条没有意义，只保留日志。
			deps, err := e.runDeps(io.Discard)
			if err != nil {
				return err
			}
			w := &watch.Watcher{
				Root:           e.eff.CatalogRoot,
				ReservedPrefix: e.eff.ReservedPrefix,
				Cron:           cronSpec,
				Debounce:       debounce,
				Run: func(ctx context.Context, titles []string) error {
					var (
						rr  domain.RunReport
						err error
					)
					if titles == nil {
						rr, err = run.Execute(ctx, e.eff, deps)
					} else {
						log.Info().Strs("titles", titles).Msg("发现新条目")
						rr, err = run.ExecuteTitles(ctx, e.eff, deps, titles)
					}
					if werr := emit(cmd.OutOrStdout(), e, rr, format, f.reportFile); werr != nil {
						log.Warn().Err(werr).Msg("输出报告失败")
					}
					return err
				},
			}
			return w.Watch(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "并行处理的记录数（1-32）")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "只查询 provider，不写存储、不下载缩略图")
	cmd.Flags().StringVar(&f.format, "format", "text", "报告格式：text|table|json|csv")
	cmd.Flags().StringVar(&f.reportFile, "report-file", "", "每次运行后原子写入报告")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "定期全量运行的 cron 表达式（例如 \"0 3 * * *\"）")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "新目录出现后等待的时间")
	return cmd
}
