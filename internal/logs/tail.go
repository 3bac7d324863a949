package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	pollInterval = 250 * time.Millisecond
	chunkSize    = 64 * 1024
)

// TailOptions selects what Tail reads. A negative Offset returns the last
// Limit lines; otherwise reading starts at Offset. With Follow set, Tail
// waits up to Wait for new lines when none are available yet.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult holds the lines read and the offset to resume from. Offset
// never points into the middle of a line that is still being written.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads path according to opts. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	deadline := time.Now().Add(max(opts.Wait, 0))
	for {
		result, err := readOnce(path, opts)
		if err != nil || len(result.Lines) > 0 || !opts.Follow || !time.Now().Before(deadline) {
			return result, err
		}
		opts = TailOptions{Offset: result.Offset, Follow: true}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func readOnce(path string, opts TailOptions) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return TailResult{Offset: max(opts.Offset, 0)}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	size := info.Size()

	if opts.Offset < 0 {
		lines, err := lastLines(file, size, opts.Limit)
		if err != nil {
			return TailResult{Offset: opts.Offset}, err
		}
		return TailResult{Lines: lines, Offset: size}, nil
	}
	return completeLines(file, min(opts.Offset, size))
}

// lastLines scans backwards from size in fixed chunks until it has seen
// limit line breaks or reached the start of the file.
func lastLines(r io.ReaderAt, size int64, limit int) ([]string, error) {
	if limit <= 0 || size == 0 {
		return nil, nil
	}
	var tail []byte
	pos := size
	for pos > 0 && bytes.Count(tail, []byte{'\n'}) <= limit {
		n := min(int64(chunkSize), pos)
		pos -= n
		chunk := make([]byte, n)
		if _, err := r.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log file: %w", err)
		}
		tail = append(chunk, tail...)
	}
	lines := strings.Split(strings.TrimSuffix(string(tail), "\n"), "\n")
	if pos > 0 {
		// The first entry may be a partial line.
		lines = lines[1:]
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

// completeLines returns every newline-terminated line after offset. A
// trailing partial line is left for the next call.
func completeLines(file *os.File, offset int64) (TailResult, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	result := TailResult{Offset: offset}
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return result, fmt.Errorf("read log file: %w", err)
		}
		result.Offset += int64(len(line))
		result.Lines = append(result.Lines, strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"))
	}
}
