package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Width caps wrap long cells; zero
// leaves the column unbounded.
type column struct {
	Title string
	Align text.Align
	Width int
}

func left(title string, width int) column { return column{Title: title, Align: text.AlignLeft, Width: width} }
func right(title string) column { return column{Title: title, Align: text.AlignRight} }

// renderTable draws rows under cols. Headers keep the case they are given;
// short rows are padded with empty cells.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, 0, len(cols))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, c := range cols {
		header = append(header, c.Title)
		cfg := table.ColumnConfig{Number: i + 1, Align: c.Align, AlignHeader: text.AlignLeft}
		if c.Width > 0 {
			cfg.WidthMax = c.Width
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
