package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"framecache/internal/ipc"
	"framecache/internal/logs"
)

type tailFunc func(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var match string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tail tailFunc
			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				defer client.Close()
				tail = client.LogTail
			} else {
				// Daemon offline: read the log file directly.
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				path := cfg.LogPath()
				tail = func(req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
					result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{
						Offset: req.Offset,
						Limit:  req.Limit,
						Follow: req.Follow,
						Wait:   time.Duration(req.WaitMillis) * time.Millisecond,
						Match:  req.Match,
					})
					return &ipc.LogTailResponse{Lines: result.Lines, Offset: result.Offset}, err
				}
			}
			return streamLogs(cmd, tail, lines, follow, match)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&match, "grep", "", "Only show lines containing this text (case-insensitive)")
	return cmd
}

func streamLogs(cmd *cobra.Command, tail tailFunc, lines int, follow bool, match string) error {
	limit := max(lines, 0)
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}
	printed := false
	for {
		resp, err := tail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: 1000,
			Match:      match,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}
}
