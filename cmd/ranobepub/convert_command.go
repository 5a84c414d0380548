package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ranobepub/internal/app"
	"ranobepub/internal/convert"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		outDir      string
		concurrency int
		maxAttempts int
		noHistory   bool
	)

	cmd := &cobra.Command{
		Use:   "convert <work-url>...",
		Short: "Download works and write one EPUB per work",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("out") {
				cfg.Output.Dir = outDir
			}
			if flags.Changed("concurrency") {
				cfg.Fetch.MaxConcurrency = concurrency
			}
			if flags.Changed("max-attempts") {
				cfg.Fetch.MaxAttempts = maxAttempts
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if noHistory {
				a.DisableHistory()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, ref := range args {
				res, err := a.Converter.Run(runCtx, ref)
				if err != nil {
					return fmt.Errorf("convert %s: %w", ref, err)
				}
				printResult(cmd, res)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum chapters fetched at once (0 = all)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Give up on a chapter after this many failed attempts (0 = never)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")
	return cmd
}

func printResult(cmd *cobra.Command, res *convert.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d chapters, %s, %s\n",
		res.Work.DisplayName(), res.Chapters, humanBytes(res.Bytes), res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "written to %s\n", res.Path)

	if len(res.Failed) == 0 {
		return
	}
	rows := make([][]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		rows = append(rows, []string{
			strconv.Itoa(f.Index + 1),
			f.Descriptor.Volume,
			f.Descriptor.Number,
			f.Err.Error(),
		})
	}
	fmt.Fprintln(out, "skipped chapters:")
	fmt.Fprintln(out, renderTable([]column{right("#"), right("Volume"), right("Number"), left("Error", 60)}, rows))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
