package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions selects the part of a log file Tail returns.
type TailOptions struct {
	// Offset resumes after a previous result. Negative starts from the last
	// Limit lines of the file.
	Offset int64
	Limit  int
	Follow bool
	// Wait bounds how long a follow request blocks when nothing new was written.
	Wait time.Duration
	// Match keeps only lines containing it, ignoring case.
	Match string
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// Tail reads lines from the log at path. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	match := newMatcher(opts.Match)

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit, match)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Truncated or rotated since the last read.
			offset = 0
		}
		result, err = readFrom(path, offset, match)
	}
	if err != nil || !opts.Follow || opts.Wait == 0 || len(result.Lines) > 0 {
		return result, err
	}
	return waitForLines(ctx, path, result.Offset, opts.Wait, match)
}

type matcher func(string) bool

func newMatcher(pattern string) matcher {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), pattern)
	}
}

// scan calls emit for each complete line at or after from and returns the
// offset just past the last complete line.
func scan(path string, from int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return from, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(from, io.SeekStart); err != nil {
		return from, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	offset := from
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(strings.TrimRight(line, "\r\n"))
	}
}

func lastLines(path string, limit int, match matcher) (TailResult, error) {
	if limit <= 0 {
		info, err := os.Stat(path)
		if err != nil {
			return TailResult{}, fmt.Errorf("stat log file: %w", err)
		}
		return TailResult{Offset: info.Size()}, nil
	}
	ring := make([]string, limit)
	count := 0
	offset, err := scan(path, 0, func(line string) {
		if !match(line) {
			return
		}
		ring[count%limit] = line
		count++
	})
	if err != nil {
		return TailResult{}, err
	}
	n := min(count, limit)
	lines := make([]string, n)
	start := count - n
	for i := range n {
		lines[i] = ring[(start+i)%limit]
	}
	return TailResult{Lines: lines, Offset: offset}, nil
}

func readFrom(path string, offset int64, match matcher) (TailResult, error) {
	var lines []string
	next, err := scan(path, offset, func(line string) {
		if match(line) {
			lines = append(lines, line)
		}
	})
	return TailResult{Lines: lines, Offset: next}, err
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, match matcher) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
		if info, err := os.Stat(path); err == nil && info.Size() < result.Offset {
			result.Offset = 0
		}
		next, err := readFrom(path, result.Offset, match)
		if err != nil {
			return result, err
		}
		result.Offset = next.Offset
		if len(next.Lines) > 0 {
			result.Lines = next.Lines
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
	}
}
