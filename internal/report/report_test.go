package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/domain"
)

func sample() domain.RunReport {
	rr := domain.RunReport{
		Kind: "video",
		Items: []domain.ItemResult{
			{Title: "Perfect Blue", Status: domain.StatusSkipped, ThumbnailPresent: true},
			{Title: "Paprika", Status: domain.StatusIncomplete, Missing: []string{"description"}, ThumbnailPresent: true},
			{Title: "Akira", Status: domain.StatusIncomplete, Missing: []string{"studio", "tags"}},
			{Title: "Berserk", Status: domain.StatusComplete, Changed: []string{"studio"}},
		},
	}
	rr.Finalize()
	return rr
}

func TestWrite_TextLegacyWording(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample(), FormatText); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := strings.Join([]string{
		"Missing data on the following series:",
		"  - Akira",
		"     - Thumbnail Is Not On File",
		"     - studio",
		"     - tags",
		"  - Paprika",
		"     - description",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("文本报告不符合预期：\n%s", buf.String())
	}
}

func TestWrite_TextAllUpToDate(t *testing.T) {
	rr := domain.RunReport{Kind: "manga", Items: []domain.ItemResult{
		{Title: "Berserk", Status: domain.StatusSkipped},
		{Title: "Vagabond", Status: domain.StatusComplete},
	}}
	rr.Finalize()

	var buf bytes.Buffer
	if err := Write(&buf, rr, FormatText); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := buf.String(); got != "All 2 manga metadata files are up to date.\n" {
		t.Fatalf("期望汇总行，实际 %q", got)
	}
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample(), FormatCSV); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := "title,missing,thumbnail_present\nAkira,\"studio,tags\",false\nPaprika,description,true\n"
	if buf.String() != want {
		t.Fatalf("CSV 不符合预期：%q", buf.String())
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample(), FormatJSON); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var back domain.RunReport
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if back.Summary.Incomplete != 2 || back.Items[0].Title != "Akira" {
		t.Fatalf("JSON 报告内容不对：%+v", back.Summary)
	}
}

func TestWrite_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample(), FormatTable); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	out := buf.String()
	for _, want := range []string{"TITLE", "Akira", "studio, tags", "INCOMPLETE 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("表格缺少 %q：\n%s", want, out)
		}
	}
}

func TestWriteFile_Atomic(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := WriteFile(fsys, "/reports/last.txt", sample(), FormatText); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFile(fsys, "/reports/last.txt", sample(), FormatCSV); err != nil {
		t.Fatalf("覆盖旧报告失败：%v", err)
	}
	b, err := afero.ReadFile(fsys, "/reports/last.txt")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.HasPrefix(string(b), "title,missing") {
		t.Fatalf("期望 CSV 内容，实际 %q", string(b))
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TABLE": FormatTable, " json ": FormatJSON, "csv": FormatCSV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q)：期望 %s，实际 %s（%v）", in, want, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Fatalf("期望未知格式报错")
	}
}
