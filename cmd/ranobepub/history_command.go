package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ranobepub/internal/library"
	"ranobepub/pkg/database"
	"ranobepub/pkg/models"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		work  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return fmt.Errorf("history is disabled in the configuration")
			}

			db, err := database.Open(database.Config{Path: cfg.Database.Path})
			if err != nil {
				return err
			}
			defer db.Close()

			repo := library.NewRepo(db)
			items, err := repo.List(cmd.Context(), work, limit, 0)
			if err != nil {
				return err
			}
			total, err := repo.Count(cmd.Context(), work)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No conversions recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistory(items))
			fmt.Fprintf(out, "%d of %d shown\n", len(items), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&work, "work", "", "Only show conversions of this work")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	return cmd
}

func renderHistory(items []models.Conversion) string {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		rows = append(rows, []string{
			c.CreatedAt.Local().Format(time.DateTime),
			c.Title,
			strconv.Itoa(c.Chapters),
			strconv.Itoa(c.Failed),
			humanBytes(c.Bytes),
			c.Path,
		})
	}
	return renderTable([]column{
		left("When", 0),
		left("Title", 40),
		right("Chapters"),
		right("Skipped"),
		right("Size"),
		left("Path", 60),
	}, rows)
}
