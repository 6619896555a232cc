package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"trapcat/internal/catalog"
	"trapcat/internal/findings"
)

// maxFindingRows caps the findings table; the full list is in the log and
// in --json output.
const maxFindingRows = 50

func count(n int) string {
	return humanize.Comma(int64(n))
}

func renderFindingCounts(report *findings.Report) string {
	counts := report.Counts()
	rows := make([][]string, 0, len(counts))
	for _, kind := range findings.AllKinds() {
		rows = append(rows, []string{string(kind), count(counts[kind])})
	}
	return renderTable([]string{"Finding", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderFindings(report *findings.Report) string {
	all := report.Sorted()
	if len(all) == 0 {
		return ""
	}
	shown := all
	if len(shown) > maxFindingRows {
		shown = shown[:maxFindingRows]
	}
	rows := make([][]string, 0, len(shown))
	for _, f := range shown {
		detail := f.Detail
		if f.Hint != "" {
			detail = strings.TrimSpace(detail + "; " + f.Hint)
		}
		rows = append(rows, []string{string(f.Kind), f.Filename, formatRows(f.Rows), detail})
	}
	out := renderTable([]string{"Kind", "Filename", "Rows", "Detail"}, rows, nil)
	if hidden := len(all) - len(shown); hidden > 0 {
		out += fmt.Sprintf("\n… %s more (see log or use --json)", count(hidden))
	}
	return out
}

// formatRows prints zero-based row positions as one-based data rows.
func formatRows(rows []int) string {
	if len(rows) == 0 {
		return ""
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r + 1)
	}
	return strings.Join(parts, ",")
}

func renderCategoryCounts(counts []catalog.CategoryCount) string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{strconv.Itoa(c.ID), c.Name, count(c.Count)})
	}
	return renderTable([]string{"ID", "Category", "Annotations"}, rows, []columnAlignment{alignRight, alignLeft, alignRight})
}

func renderCounts(c catalog.Counts) string {
	rows := [][]string{
		{"Images", count(c.Images)},
		{"Annotations", count(c.Annotations)},
		{"Categories", count(c.Categories)},
	}
	return renderTable([]string{"Entity", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
