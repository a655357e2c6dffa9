package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/operator"
)

var (
	enqueueYearFrom int
	enqueueYearTo   int
	enqueueMode    string
	enqueueCounty  string
	enqueueLevel   string
	enqueueForce   bool
	enqueuePrio    int

	tasksStatus string
	tasksLimit  int

	retryAll bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <dataset-code>",
	Short: "Queue a sync task for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := args[0]
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *operator.Service) {
			oneShot(lc, sd, func(ctx context.Context) error {
				task, err := svc.Enqueue(ctx, operator.EnqueueRequest{
					DatasetCode: code,
					YearFrom:    enqueueYearFrom,
					YearTo:      enqueueYearTo,
					Mode:        model.ClassificationMode(enqueueMode),
					CountyCode:  enqueueCounty,
					Level:       model.TerritoryLevel(enqueueLevel),
					Force:       enqueueForce,
					Priority:    enqueuePrio,
				})
				if err != nil {
					return err
				}
				fmt.Printf("enqueued task %s (dataset %s, years %d-%d)\n",
					task.ID, task.DatasetCode, task.YearFrom, task.YearTo)
				return nil
			})
		})
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List sync tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *operator.Service) {
			oneShot(lc, sd, func(ctx context.Context) error {
				tasks, err := svc.Tasks(ctx, model.TaskStatus(strings.ToUpper(tasksStatus)), tasksLimit)
				if err != nil {
					return err
				}
				printTasks(tasks)
				return nil
			})
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [task-id]",
	Short: "Re-queue a failed task (or all failed tasks with --all)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !retryAll && len(args) == 0 {
			return fmt.Errorf("a task id or --all is required")
		}
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *operator.Service) {
			oneShot(lc, sd, func(ctx context.Context) error {
				if retryAll {
					n, err := svc.RetryAllFailed(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("re-queued %d failed tasks\n", n)
					return nil
				}
				task, err := svc.Retry(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("task %s re-queued\n", task.ID)
				return nil
			})
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *operator.Service) {
			oneShot(lc, sd, func(ctx context.Context) error {
				task, err := svc.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("task %s cancelled\n", task.ID)
				return nil
			})
		})
	},
}

func printTasks(tasks []*model.SyncTask) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATASET\tYEARS\tSTATUS\tCHUNKS\tSKIPPED\tFAILED\tROWS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%d-%d\t%s\t%d/%d\t%d\t%d\t+%d/~%d\t%s\n",
			t.ID, t.DatasetCode, t.YearFrom, t.YearTo, t.Status,
			t.ChunksCompleted, t.ChunksTotal, t.ChunksSkipped, t.ChunksFailed,
			t.RowsInserted, t.RowsUpdated, t.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func init() {
	enqueueCmd.Flags().IntVar(&enqueueYearFrom, "from", 0, "first year of the range")
	enqueueCmd.Flags().IntVar(&enqueueYearTo, "to", 0, "last year of the range")
	enqueueCmd.Flags().StringVar(&enqueueMode, "mode", "totals", "classification mode: totals or all")
	enqueueCmd.Flags().StringVar(&enqueueCounty, "county", "", "restrict to a single county code")
	enqueueCmd.Flags().StringVar(&enqueueLevel, "level", "", "territorial level: national, county_aggregate or locality_detail")
	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "clear checkpoints and refetch every chunk")
	enqueueCmd.Flags().IntVar(&enqueuePrio, "priority", 0, "claim priority (higher first)")

	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 50, "maximum tasks to list")

	retryCmd.Flags().BoolVar(&retryAll, "all", false, "re-queue every failed task")

	rootCmd.AddCommand(enqueueCmd, tasksCmd, retryCmd, cancelCmd)
}
