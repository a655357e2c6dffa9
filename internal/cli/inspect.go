package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/export"
	"github.com/insdata/temposync/internal/operator"
)

var (
	planYearFrom int
	planYearTo   int
	planMode     string
	planCounty   string
	planLevel    string

	cpStatus string
	cpClear  bool
	cpCounty string
)

var planCmd = &cobra.Command{
	Use:   "plan <dataset-code>",
	Short: "Preview how a sync request decomposes into chunks, without queueing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := args[0]
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *operator.Service) {
			oneShot(lc, sd, func(ctx context.Context) error {
				preview, err := svc.Plan(ctx, operator.EnqueueRequest{
					DatasetCode: code,
					YearFrom:    planYearFrom,
					YearTo:      planYearTo,
					Mode:        model.ClassificationMode(planMode),
					CountyCode:  planCounty,
					Level:       model.TerritoryLevel(planLevel),
				})
				if err != nil {
					return err
				}
				fmt.Printf("dataset %s: %d chunks, %d total cells\n",
					preview.DatasetCode, len(preview.Chunks), preview.TotalCells)
				for _, c := range preview.Chunks {
					fmt.Printf("  %s  %s\n", c.Hash[:12], c.Label)
				}
				return nil
			})
		})
	},
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <dataset-code>",
	Short: "Inspect or clear a dataset's chunk checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := args[0]
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *operator.Service) {
			oneShot(lc, sd, func(ctx context.Context) error {
				if cpClear {
					n, err := svc.ClearCheckpoints(ctx, code, cpCounty)
					if err != nil {
						return err
					}
					fmt.Printf("cleared %d checkpoints of dataset %s\n", n, strings.ToUpper(code))
					return nil
				}
				cps, err := svc.Checkpoints(ctx, code, model.CheckpointStatus(strings.ToUpper(cpStatus)))
				if err != nil {
					return err
				}
				printCheckpoints(cps)
				return nil
			})
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <dataset-code>",
	Short: "Write a parquet snapshot of a dataset's fact partition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := args[0]
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, exporter *export.Exporter) {
			oneShot(lc, sd, func(ctx context.Context) error {
				snap, err := exporter.Export(ctx, code)
				if err != nil {
					return err
				}
				fmt.Printf("exported %d rows to %s\n", snap.Rows, snap.Path)
				return nil
			})
		})
	},
}

func printCheckpoints(cps []*model.Checkpoint) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tSTATUS\tCELLS\tROWS\tRETRIES\tLAST ERROR\tLABEL")
	for _, cp := range cps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			cp.ChunkHash[:12], cp.Status, cp.CellCount, cp.RowCount, cp.RetryCount,
			cp.LastError, cp.Label)
	}
	w.Flush()
}

func init() {
	planCmd.Flags().IntVar(&planYearFrom, "from", 0, "first year of the range")
	planCmd.Flags().IntVar(&planYearTo, "to", 0, "last year of the range")
	planCmd.Flags().StringVar(&planMode, "mode", "totals", "classification mode: totals or all")
	planCmd.Flags().StringVar(&planCounty, "county", "", "restrict to a single county code")
	planCmd.Flags().StringVar(&planLevel, "level", "", "territorial level override")

	checkpointsCmd.Flags().StringVar(&cpStatus, "status", "", "filter by status (SUCCESS, FAILED, EXHAUSTED)")
	checkpointsCmd.Flags().BoolVar(&cpClear, "clear", false, "delete the checkpoints instead of listing them")
	checkpointsCmd.Flags().StringVar(&cpCounty, "county", "", "with --clear, only clear chunks of this county")

	rootCmd.AddCommand(planCmd, checkpointsCmd, exportCmd)
}
