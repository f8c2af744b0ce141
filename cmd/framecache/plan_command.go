package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"framecache/internal/ipc"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Preview the frames the cache would load next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Plan()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Preview)
				}
				p := resp.Preview
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Position: %s\n", formatPosition(p.Position, nil))
				fmt.Fprintf(out, "Keep: %s  Queued: %s  Evictions: %d\n",
					formatBytes(p.KeepBytes), formatBytes(p.QueuedBytes), p.Evictions)
				if len(p.Jobs) == 0 {
					fmt.Fprintln(out, "Nothing to load")
					return nil
				}
				rows := make([][]string, 0, len(p.Jobs))
				for i, job := range p.Jobs {
					rows = append(rows, []string{
						fmt.Sprintf("%d", i+1),
						job.Name,
						job.Frames.String(),
						fmt.Sprintf("%d", job.Frames.Len()),
						formatBytes(job.Bytes),
					})
				}
				fmt.Fprint(out, renderTable(
					[]column{numCol("#"), textCol("Item"), textCol("Frames"), numCol("Count"), numCol("Bytes")},
					rows,
				))
				return nil
			})
		},
	}
}
