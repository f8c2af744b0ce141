package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"framecache/internal/controller"
	"framecache/internal/item"
	"framecache/internal/playlist"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 14
	statusIndent     = "  "
	maxRangesShown   = 4
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// cacheStateKind maps a controller state name to a status severity.
func cacheStateKind(state string) statusKind {
	switch state {
	case controller.StateRunning.String():
		return statusOK
	case controller.StateIdle.String():
		return statusInfo
	default:
		return statusWarn
	}
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

func formatUsage(current, maxBytes int64) string {
	if maxBytes <= 0 {
		return fmt.Sprintf("%s / unlimited", formatBytes(current))
	}
	pct := float64(current) / float64(maxBytes) * 100
	return fmt.Sprintf("%s / %s (%.0f%%)", formatBytes(current), formatBytes(maxBytes), pct)
}

func formatItemID(id item.ID) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatUint(uint64(id), 10)
}

func formatPosition(pos playlist.Position, names map[item.ID]string) string {
	if pos.Item == 0 {
		return "no item loaded"
	}
	name := names[pos.Item]
	if name == "" {
		name = "#" + formatItemID(pos.Item)
	}
	state := "paused"
	if pos.Playing {
		state = "playing"
		if pos.Reverse {
			state = "playing in reverse"
		}
	}
	return fmt.Sprintf("%s frame %d (%s)", name, pos.Frame, state)
}

func formatRanges(ranges []item.Range) string {
	if len(ranges) == 0 {
		return "-"
	}
	parts := make([]string, 0, maxRangesShown+1)
	for i, r := range ranges {
		if i == maxRangesShown {
			parts = append(parts, fmt.Sprintf("+%d more", len(ranges)-maxRangesShown))
			break
		}
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " ")
}

func itemNames(items []controller.ItemStatus) map[item.ID]string {
	names := make(map[item.ID]string, len(items))
	for _, is := range items {
		names[is.ID] = is.Name
	}
	return names
}

func buildItemRows(items []controller.ItemStatus) [][]string {
	rows := make([][]string, 0, len(items))
	for _, is := range items {
		name := is.Name
		if is.Deleting {
			name += " (deleting)"
		} else if !is.InPlaylist {
			name += " (orphaned)"
		}
		rows = append(rows, []string{
			formatItemID(is.ID),
			name,
			fmt.Sprintf("%d/%d", is.CachedFrames, is.Frames.Len()),
			formatBytes(is.CachedBytes),
			formatRanges(is.Ranges),
		})
	}
	return rows
}

func buildWorkerRows(workers []controller.WorkerStatus, names map[item.ID]string) [][]string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		state := "idle"
		target, frames := "-", "-"
		if w.Busy {
			state = "busy"
			target = names[w.Item]
			if target == "" {
				target = "#" + formatItemID(w.Item)
			}
			frames = w.Frames.String()
		}
		if w.Retiring {
			state += " (retiring)"
		}
		rows = append(rows, []string{strconv.Itoa(w.ID), state, target, frames})
	}
	return rows
}
