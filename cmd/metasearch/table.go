package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/quality"
)

const maxCellWidth = 48

func newTable(out io.Writer, headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func alignRight(tw table.Writer, columns ...int) {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, number := range columns {
		configs = append(configs, table.ColumnConfig{Number: number, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
}

func renderSearchResponse(out io.Writer, response domain.SearchResponse) {
	tw := newTable(out, "#", "Score", "Title", "Author", "Source", "ASIN")
	alignRight(tw, 1, 2)
	for i, item := range response.Items {
		tw.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.3f", item.Score),
			clip(item.Title),
			clip(item.Author),
			firstNonBlank(item.MetadataSource, item.Source),
			item.ASIN,
		})
	}
	tw.SetCaption("%d results in %dms", response.TotalItems, response.ElapsedMS)
	tw.Render()
	renderProviders(out, response.Providers)
}

func renderRanked(out io.Writer, profile string, items []quality.Ranked) {
	tw := newTable(out, "#", "Verdict", "Score", "Composite", "Title", "Notes")
	alignRight(tw, 1, 3, 4)
	accepted := 0
	for i, item := range items {
		verdict := text.FgGreen.Sprint(string(item.Decision.Verdict))
		score, composite := strconv.Itoa(item.Decision.Score), fmt.Sprintf("%.0f", item.Composite.Total)
		notes := ""
		if item.Decision.IsRejected() {
			verdict = text.FgRed.Sprint(string(item.Decision.Verdict))
			score, composite = "-", "-"
			notes = strings.Join(item.Decision.RejectionReasons, "; ")
		} else {
			accepted++
		}
		tw.AppendRow(table.Row{i + 1, verdict, score, composite, clip(item.Release.Title), clip(notes)})
	}
	tw.SetCaption("profile %q: %d of %d accepted", profile, accepted, len(items))
	tw.Render()
}

func renderProviders(out io.Writer, statuses []domain.ProviderStatus) {
	if len(statuses) == 0 {
		return
	}
	tw := newTable(out, "Provider", "Status", "Count", "Error")
	alignRight(tw, 3)
	for _, status := range statuses {
		state := text.FgGreen.Sprint("ok")
		if !status.OK {
			state = text.FgRed.Sprint("failed")
		}
		tw.AppendRow(table.Row{status.Name, state, status.Count, clip(status.Error)})
	}
	tw.Render()
}

func clip(value string) string {
	value = strings.TrimSpace(value)
	if len([]rune(value)) <= maxCellWidth {
		return value
	}
	return string([]rune(value)[:maxCellWidth-1]) + "…"
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
