package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"framecache/internal/daemonctl"
	"framecache/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the framecache daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level for the launched daemon")

	var cacheOnly bool
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the framecache daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if cacheOnly {
				return ctx.withClient(func(client *ipc.Client) error {
					if _, err := client.Stop(); err != nil {
						return err
					}
					fmt.Fprintln(stdout, "Cache stopped; daemon still listening")
					return nil
				})
			}
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.ShutdownAcknowledged {
				fmt.Fprintln(stdout, "Shutdown request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "Stop caching but keep the daemon process running")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, cache, worker and item status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if ctx.jsonOutput() {
					return writeJSON(cmd, ipc.StatusResponse{})
				}
				colorize := shouldColorize(stdout)
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running (run `framecache start`)", colorize))
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			renderStatus(stdout, status, shouldColorize(stdout))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	cache := status.Cache
	names := itemNames(cache.Items)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Cache stopped (pid %d)", status.PID), colorize))
	}
	if status.SessionID != "" {
		fmt.Fprintln(out, renderStatusLine("Session", statusInfo, status.SessionID, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Position", statusInfo, formatPosition(status.Position, names), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Cache", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("State", cacheStateKind(cache.State), cache.State, colorize))
	enabledKind := statusOK
	if !cache.Enabled {
		enabledKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Enabled", enabledKind, yesNo(cache.Enabled), colorize))
	usageKind := statusOK
	if cache.MaxBytes > 0 && cache.CurrentBytes > cache.MaxBytes {
		usageKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Usage", usageKind, formatUsage(cache.CurrentBytes, cache.MaxBytes), colorize))
	fmt.Fprintln(out, renderStatusLine("Rate", statusInfo, formatRate(cache.RateBytesPerSecond), colorize))
	fmt.Fprintln(out, renderStatusLine("Queue", statusInfo,
		fmt.Sprintf("%d jobs, %d frames, %d evictions pending", cache.QueuedJobs, cache.QueuedFrames, cache.PendingEvictions), colorize))
	interactive := "idle"
	switch {
	case cache.InteractiveActive && cache.InteractivePending:
		interactive = "loading, one request pending"
	case cache.InteractiveActive:
		interactive = "loading"
	}
	fmt.Fprintln(out, renderStatusLine("Interactive", statusInfo, interactive, colorize))
	c := cache.Counters
	fmt.Fprintln(out, renderStatusLine("Totals", statusInfo,
		fmt.Sprintf("%d cached, %d failed, %d evicted (%s), %d replans",
			c.FramesCached, c.FramesFailed, c.FramesEvicted, formatBytes(c.BytesEvicted), c.Replans), colorize))

	if len(cache.Workers) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Workers", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprint(out, renderTable(
			[]column{numCol("Slot"), textCol("State"), textCol("Item"), textCol("Frames")},
			buildWorkerRows(cache.Workers, names),
		))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Items", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(cache.Items) == 0 {
		fmt.Fprintln(out, "Playlist is empty")
		return
	}
	fmt.Fprint(out, renderTable(
		[]column{numCol("ID"), textCol("Name"), numCol("Cached"), numCol("Bytes"), textCol("Ranges")},
		buildItemRows(cache.Items),
	))
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if config := ctx.configPath(); config != "" {
		opts.ConfigPath = config
	}
	return opts
}
