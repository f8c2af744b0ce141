package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"framecache/internal/daemonctl"
	"framecache/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded caching-rate samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonctl.HistorySnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue(), limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			s := resp.Summary
			if s.Samples == 0 {
				fmt.Fprintln(out, "No rate samples recorded")
				return nil
			}
			fmt.Fprintf(out, "Samples: %d over %d sessions, %s loaded, peak %s\n",
				s.Samples, s.Sessions, formatBytes(s.TotalBytes), formatRate(s.PeakBytesPerSecond))
			if s.EvictedFrames > 0 {
				fmt.Fprintf(out, "Evicted: %d frames (%s)\n", s.EvictedFrames, formatBytes(s.EvictedBytes))
			}
			fmt.Fprint(out, renderTable(
				[]column{textCol("When"), numCol("Loaded"), numCol("Rate"), numCol("Usage"), numCol("Evicted")},
				historyRows(resp.Samples),
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of samples to show (0 for all)")
	return cmd
}

func historyRows(samples []history.Sample) [][]string {
	rows := make([][]string, 0, len(samples))
	for _, sample := range samples {
		evicted := "-"
		if sample.EvictedFrames > 0 {
			evicted = strconv.FormatUint(sample.EvictedFrames, 10)
		}
		rows = append(rows, []string{
			humanize.Time(sample.At),
			formatBytes(sample.Bytes),
			formatRate(sample.BytesPerSecond),
			formatUsage(sample.CurrentBytes, sample.MaxBytes),
			evicted,
		})
	}
	return rows
}
