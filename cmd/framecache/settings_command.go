package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"framecache/internal/controller"
	"framecache/internal/daemon"
	"framecache/internal/ipc"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	var (
		maxSize         string
		workers         int
		enable          bool
		disable         bool
		nearRadius      int
		maxJobFrames    int
		replanThreshold int
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the runtime cache settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}
			var update daemon.SettingsUpdate
			flags := cmd.Flags()
			if flags.Changed("max") {
				size, err := parseSize(maxSize)
				if err != nil {
					return err
				}
				update.MaxBytes = &size
			}
			if flags.Changed("workers") {
				if workers < 0 {
					return fmt.Errorf("workers must be >= 0")
				}
				update.Workers = &workers
			}
			if enable || disable {
				enabled := enable
				update.Enabled = &enabled
			}
			if flags.Changed("near-radius") {
				update.NearRadius = &nearRadius
			}
			if flags.Changed("max-job-frames") {
				update.MaxJobFrames = &maxJobFrames
			}
			if flags.Changed("replan-threshold") {
				update.ReplanThreshold = &replanThreshold
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Settings(update)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Settings)
				}
				out := cmd.OutOrStdout()
				if !update.Empty() {
					fmt.Fprintln(out, "Settings updated")
				}
				fmt.Fprint(out, renderTable([]column{textCol("Setting"), textCol("Value")}, settingsRows(resp.Settings)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&maxSize, "max", "", "Cache budget (e.g. 512MiB, 2GiB)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of background worker slots")
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable background caching")
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable background caching")
	cmd.Flags().IntVar(&nearRadius, "near-radius", 0, "Frames around the playhead cached first")
	cmd.Flags().IntVar(&maxJobFrames, "max-job-frames", 0, "Largest contiguous run per job")
	cmd.Flags().IntVar(&replanThreshold, "replan-threshold", 0, "Frames the playhead may move before a replan")
	return cmd
}

// parseSize accepts plain byte counts and humanized sizes.
func parseSize(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid size %q", value)
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	return int64(n), nil
}

func settingsRows(s controller.Settings) [][]string {
	return [][]string{
		{"Enabled", yesNo(s.Enabled)},
		{"Max size", formatBytes(s.MaxBytes)},
		{"Workers", strconv.Itoa(s.Workers)},
		{"Near radius", strconv.Itoa(s.NearRadius)},
		{"Max job frames", strconv.Itoa(s.MaxJobFrames)},
		{"Replan threshold", strconv.Itoa(s.ReplanThreshold)},
	}
}
