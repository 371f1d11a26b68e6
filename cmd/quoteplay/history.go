package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/loqalabs/quoteplay/internal/history"
)

var historyLimit int

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

var historyCmd = &cobra.Command{
	Use:   "history [invocation-id]",
	Short: "Show recent quote runs or the events of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cmd.Context(), cfg.History, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if !store.Enabled() {
			fmt.Fprintln(out, dimStyle.Render("History is ephemeral; set history.retention_mode to session or persistent to keep runs."))
			return nil
		}
		if len(args) == 1 {
			events, err := store.Events(cmd.Context(), args[0], historyLimit)
			if err != nil {
				return err
			}
			return printEvents(out, events)
		}
		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return printInvocations(out, runs)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of rows to show")
	rootCmd.AddCommand(historyCmd)
}

func printInvocations(w io.Writer, runs []history.Invocation) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No runs recorded yet."))
		return nil
	}
	const outcomeCol = 2
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.CreatedAt.Local().Format(time.DateTime),
			run.Outcome,
			run.Model,
			truncate(run.Text, 48),
		})
	}
	t := newTable("ID", "STARTED", "OUTCOME", "MODEL", "QUOTE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.PaddingRight(2)
			case col == outcomeCol && row >= 0 && row < len(rows):
				return outcomeStyle(rows[row][col]).PaddingRight(2)
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func printEvents(w io.Writer, events []history.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No events for that run."))
		return nil
	}
	t := newTable("TIME", "EVENT", "DETAIL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.PaddingRight(2)
			}
			return cellStyle
		})
	for _, ev := range events {
		t.Row(ev.CreatedAt.Local().Format(time.TimeOnly), ev.Type, ev.Detail)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// newTable renders borderless columns; lipgloss measures cell width without
// the ANSI styling.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(headers...)
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "", "running":
		return dimStyle
	case "spoken":
		return okStyle
	case "unplayed":
		return lipgloss.NewStyle()
	default:
		return failStyle
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
