// Package report renders run results and score breakdowns for the terminal.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/pipeline"
	"github.com/amishk599/talentmatch/internal/scorer"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42")) // green

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")) // red

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(12)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	errCellStyle = cellStyle.Foreground(lipgloss.Color("196"))
)

var jobHeaders = []string{"JOB", "TITLE", "CREATED", "UPDATED", "DELETED", "KEPT", "PROTECTED", "ERROR"}

// errorColumn is the index of the ERROR column in jobHeaders.
const errorColumn = 7

// maxTitle truncates long job titles in the table.
const maxTitle = 40

// Render formats a run result as a status block followed by a per-job table
// with a totals row.
func Render(res *pipeline.RunResult) string {
	if res == nil {
		return ""
	}

	var b strings.Builder

	status := okStyle.Render("OK")
	if !res.Success {
		status = failStyle.Render("FAILED")
	}
	b.WriteString(titleStyle.Render("Reconciliation run") + "  " + status + "\n")

	mode := "incremental"
	if res.FullMode {
		mode = "full"
	}
	line := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	line("Run", res.RunID)
	line("Executed", res.ExecutedAt.UTC().Format(time.RFC3339))
	line("Threshold", strconv.Itoa(res.Threshold))
	line("Mode", mode)
	line("Jobs", fmt.Sprintf("%d processed, %d failed", res.Summary.JobsProcessed, res.Summary.JobsFailed))
	if res.Error != "" {
		line("Error", failStyle.Render(res.Error))
	}

	if len(res.Jobs) == 0 {
		b.WriteString(dimStyle.Render("no active jobs") + "\n")
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(jobTable(res))
	b.WriteString("\n")
	return b.String()
}

func jobTable(res *pipeline.RunResult) string {
	rows := make([][]string, 0, len(res.Jobs)+1)
	for _, j := range res.Jobs {
		rows = append(rows, statsRow(j.JobID, truncate(j.JobTitle, maxTitle), j.Stats, j.Error))
	}
	total := model.Stats{
		Created:   res.Summary.TotalCreated,
		Updated:   res.Summary.TotalUpdated,
		Deleted:   res.Summary.TotalDeleted,
		Kept:      res.Summary.TotalKept,
		Protected: res.Summary.TotalProtected,
	}
	rows = append(rows, statsRow("TOTAL", "", total, ""))
	totalRow := len(rows) - 1

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(jobHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == totalRow:
				return cellStyle.Bold(true)
			case col == errorColumn:
				return errCellStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}

func statsRow(id, title string, s model.Stats, errMsg string) []string {
	return []string{
		id,
		title,
		strconv.Itoa(s.Created),
		strconv.Itoa(s.Updated),
		strconv.Itoa(s.Deleted),
		strconv.Itoa(s.Kept),
		strconv.Itoa(s.Protected),
		errMsg,
	}
}

// RenderScore formats the keyword breakdown of one talent/job pair.
func RenderScore(job model.Job, talent model.Talent, res scorer.Result, threshold int) string {
	var b strings.Builder

	verdict := okStyle.Render("qualifies")
	if res.Value < threshold {
		verdict = failStyle.Render("below threshold")
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s x %s", talent.ID, job.Title)) + "\n")
	b.WriteString(labelStyle.Render("Score") + fmt.Sprintf("%d (threshold %d) ", res.Value, threshold) + verdict + "\n")

	if len(res.Matches) == 0 {
		b.WriteString(dimStyle.Render("job has no keywords") + "\n")
		return b.String()
	}

	rows := make([][]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		fields := strings.Join(m.Fields, ", ")
		if fields == "" {
			fields = "-"
		}
		rows = append(rows, []string{m.Keyword, strconv.Itoa(m.Count), fields})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("KEYWORD", "COUNT", "FIELDS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
