package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/infra/fsx"
)

type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatTable, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("未知的报告格式 %q（可选 text/table/json/csv）", s)
	}
}

// Entry 是一条补全后仍不完整的记录。
type Entry struct {
	Title            string   `json:"title" csv:"title"`
	Missing          []string `json:"missing" csv:"-"`
	MissingCSV       string   `json:"-" csv:"missing"`
	ThumbnailPresent bool     `json:"thumbnail_present" csv:"thumbnail_present"`
}

// Incomplete 从 RunReport 中提取仍不完整的记录，按 title 排序。
func Incomplete(rr domain.RunReport) []Entry {
	out := make([]Entry, 0, rr.Summary.Incomplete)
	for _, it := range rr.Items {
		if it.Status != domain.StatusIncomplete {
			continue
		}
		out = append(out, Entry{
			Title:            it.Title,
			Missing:          it.Missing,
			MissingCSV:       strings.Join(it.Missing, ","),
			ThumbnailPresent: it.ThumbnailPresent,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// Write 按 f 输出报告。text 与历史脚本的输出逐行一致。
func Write(w io.Writer, rr domain.RunReport, f Format) error {
	switch f {
	case FormatText, "":
		return writeText(w, rr)
	case FormatTable:
		return writeTable(w, rr)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rr)
	case FormatCSV:
		entries := Incomplete(rr)
		return gocsv.Marshal(&entries, w)
	default:
		return fmt.Errorf("未知的报告格式 %q", f)
	}
}

// WriteFile 原子写入报告文件（覆盖旧报告）。
func WriteFile(fsys afero.Fs, path string, rr domain.RunReport, f Format) error {
	var buf bytes.Buffer
	if err := Write(&buf, rr, f); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := fsx.EnsureDir(fsys, dir); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(fsys, dir, filepath.Base(path), buf.Bytes())
}

func writeText(w io.Writer, rr domain.RunReport) error {
	entries := Incomplete(rr)
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "All %d %s metadata files are up to date.\n", rr.Summary.Total, rr.Kind)
		return err
	}

	var b strings.Builder
	b.WriteString("Missing data on the following series:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "  - %s\n", e.Title)
		if !e.ThumbnailPresent {
			b.WriteString("     - Thumbnail Is Not On File\n")
		}
		for _, m := range e.Missing {
			fmt.Fprintf(&b, "     - %s\n", m)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTable(w io.Writer, rr domain.RunReport) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Title", "Status", "Missing", "Thumbnail", "Changed"})
	for _, it := range rr.Items {
		thumb := "no"
		if it.ThumbnailPresent {
			thumb = "yes"
		}
		tw.AppendRow(table.Row{it.Title, it.Status, strings.Join(it.Missing, ", "), thumb, len(it.Changed)})
	}
	s := rr.Summary
	tw.AppendFooter(table.Row{
		fmt.Sprintf("total %d", s.Total),
		fmt.Sprintf("skipped %d / complete %d / incomplete %d / failed %d", s.Skipped, s.Complete, s.Incomplete, s.Failed),
		"", "", "",
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
	})
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}
