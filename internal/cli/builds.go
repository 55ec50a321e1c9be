package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/me/jobcascade/pkg/model"
	"github.com/spf13/cobra"
)

func newNotifyCmd() *cobra.Command {
	var (
		result string
		number int
	)

	cmd := &cobra.Command{
		Use:   "notify <project>",
		Short: "Report a completed build to the server and trigger its dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post(cmd.Context(), "/api/v1/builds", map[string]any{
				"project": args[0],
				"number":  number,
				"result":  strings.ToUpper(result),
			})
			if err != nil {
				return fmt.Errorf("report build: %w", err)
			}

			var data struct {
				Build *model.Build `json:"build"`
				Log   []string     `json:"log"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %s (%s)\n", data.Build.FullDisplayName(), data.Build.Result)
			for _, line := range data.Log {
				fmt.Fprintf(out, "  %s\n", line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&result, "result", string(model.ResultSuccess), "Build result (SUCCESS, UNSTABLE, FAILURE, ABORTED)")
	cmd.Flags().IntVar(&number, "number", 0, "Build number (default: next number of the project)")
	return cmd
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending build requests on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/queue")
			if err != nil {
				return fmt.Errorf("list queue: %w", err)
			}

			var items []model.QueueItem
			if err := json.Unmarshal(resp.Data, &items); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
				return nil
			}

			fmt.Fprintf(out, "%-30s  %-19s  %s\n", "PROJECT", "NOT BEFORE", "CAUSE")
			fmt.Fprintf(out, "%-30s  %-19s  %s\n", "-------", "----------", "-----")
			for _, it := range items {
				cause := "-"
				if it.Cause.UpstreamProject != "" {
					cause = fmt.Sprintf("%s #%d", it.Cause.UpstreamProject, it.Cause.UpstreamBuild)
				}
				fmt.Fprintf(out, "%-30s  %-19s  %s\n", it.ProjectName, it.NotBefore.Local().Format(time.DateTime), cause)
			}
			return nil
		},
	}
}
