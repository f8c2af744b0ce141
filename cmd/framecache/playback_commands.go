package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"framecache/internal/ipc"
	"framecache/internal/playlist"
)

func newPlaybackCommands(ctx *commandContext) []*cobra.Command {
	seekCmd := &cobra.Command{
		Use:   "seek <item> <frame>",
		Short: "Move the playhead to a frame of an item (id or name)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := parseFrame(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Seek(args[0], frame)
				if err != nil {
					return err
				}
				return printPosition(cmd, ctx, resp.Position)
			})
		},
	}

	var back bool
	stepCmd := &cobra.Command{
		Use:   "step [frames]",
		Short: "Step the playhead forward (or back with --back)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid frame count %q", args[0])
				}
				delta = n
			}
			if back {
				delta = -delta
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Step(delta)
				if err != nil {
					return err
				}
				return printPosition(cmd, ctx, resp.Position)
			})
		},
	}
	stepCmd.Flags().BoolVarP(&back, "back", "b", false, "Step backwards")

	selectCmd := &cobra.Command{
		Use:   "select <item>",
		Short: "Make an item current and move the playhead to its first frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Select(args[0])
				if err != nil {
					return err
				}
				return printPosition(cmd, ctx, resp.Position)
			})
		},
	}

	var reverse bool
	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Start the simulated playback feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Play(reverse)
				if err != nil {
					return err
				}
				return printPosition(cmd, ctx, resp.Position)
			})
		},
	}
	playCmd.Flags().BoolVarP(&reverse, "reverse", "r", false, "Play backwards")

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the simulated playback feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				return printPosition(cmd, ctx, resp.Position)
			})
		},
	}

	return []*cobra.Command{seekCmd, stepCmd, selectCmd, playCmd, pauseCmd}
}

func parseFrame(value string) (int, error) {
	frame, err := strconv.Atoi(value)
	if err != nil || frame < 0 {
		return 0, fmt.Errorf("invalid frame %q", value)
	}
	return frame, nil
}

func printPosition(cmd *cobra.Command, ctx *commandContext, pos playlist.Position) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, pos)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Position: %s\n", formatPosition(pos, nil))
	return nil
}
