package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/fileutil"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

const maxColumnWidth = 60

// errorText prefixes err with its failure kind when it has one.
func errorText(err error) string {
	if kind, ok := services.KnownKind(err); ok {
		return kind + ": " + err.Error()
	}
	return err.Error()
}

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := fileutil.MarshalIndent(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// renderTable draws rows under headers with rounded borders. Columns listed
// in numeric are right aligned; short rows are padded with blanks.
func renderTable(headers []string, rows [][]string, numeric ...int) string {
	if len(headers) == 0 {
		return ""
	}
	right := make(map[int]bool, len(numeric))
	for _, col := range numeric {
		right[col] = true
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if right[i] {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft, WidthMax: maxColumnWidth}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}
