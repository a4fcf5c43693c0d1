package firewalllog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// StreamOptions configures Stream (spec §4.4).
type StreamOptions struct {
	Follow bool
	Parse  bool
	Format Format
	Pretty PrettyOptions
}

// Stream delivers lines from source to w, one at a time, formatted per
// opts.Format. Lines are parsed first and fall back to raw output on parse
// failure (spec §4.1 "Failure semantics"). Cancellation via ctx politely
// terminates any child tail process; a missing Preserved file is fatal.
func Stream(ctx context.Context, source LogSource, w io.Writer, opts StreamOptions) error {
	switch source.Kind {
	case SourceRunning:
		return streamRunning(ctx, source, w, opts)
	case SourcePreserved:
		return streamPreserved(ctx, source, w, opts)
	default:
		return fmt.Errorf("unknown log source kind")
	}
}

func emit(w io.Writer, line string, opts StreamOptions) error {
	if !opts.Parse {
		_, err := io.WriteString(w, RenderRaw(line))
		return err
	}
	rec := ParseLine(line)
	if rec == nil {
		_, err := io.WriteString(w, RenderRaw(line))
		return err
	}
	switch opts.Format {
	case FormatJSON:
		out, err := RenderJSON(rec)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case FormatPretty:
		_, err := fmt.Fprintln(w, RenderPretty(rec, opts.Pretty))
		return err
	default:
		_, err := io.WriteString(w, RenderRaw(line))
		return err
	}
}

func scanAndEmit(scanner *bufio.Scanner, w io.Writer, opts StreamOptions) error {
	for scanner.Scan() {
		if err := emit(w, scanner.Text(), opts); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// streamRunning reads (or tails) the access log out of the live proxy
// container via the runtime's exec facility (spec §4.4, §5 "Shared
// resources").
func streamRunning(ctx context.Context, source LogSource, w io.Writer, opts StreamOptions) error {
	args := []string{"exec", source.ContainerName}
	if opts.Follow {
		args = append(args, "tail", "-f", "-n", "+1", constants.ProxyAccessLogPath)
	} else {
		args = append(args, "cat", constants.ProxyAccessLogPath)
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	// On cancellation the child gets SIGTERM and a grace period before it is
	// killed.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to %s: %w", source.ContainerName, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to read access log from %s: %w", source.ContainerName, err)
	}

	scanErr := scanAndEmit(bufio.NewScanner(stdout), w, opts)

	// Wait drains the pipe and reaps the child.
	waitErr := cmd.Wait()
	if scanErr != nil {
		return scanErr
	}
	if ctx.Err() != nil {
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("reading access log from %s: %w", source.ContainerName, waitErr)
	}
	return nil
}

// streamPreserved reads a preserved access.log file in full, or tails it
// using fsnotify when opts.Follow is set.
func streamPreserved(ctx context.Context, source LogSource, w io.Writer, opts StreamOptions) error {
	path := source.AccessLogPath()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("access log not found at %s: %w", path, err)
	}
	defer f.Close()

	if !opts.Follow {
		return scanAndEmit(bufio.NewScanner(f), w, opts)
	}
	return tailFile(ctx, f, path, w, opts)
}

// tailFile follows a file for appended lines using fsnotify, emitting each
// complete line as it is written, until ctx is canceled.
func tailFile(ctx context.Context, f *os.File, path string, w io.Writer, opts StreamOptions) error {
	reader := bufio.NewReader(f)
	if err := drainLines(reader, w, opts); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := path[:len(path)-len("/access.log")]
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := drainLines(reader, w, opts); err != nil {
					return err
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if werr != nil {
				return fmt.Errorf("watching %s: %w", path, werr)
			}
		}
	}
}

// drainLines reads and emits every complete line currently buffered,
// leaving a trailing partial line for the next call.
func drainLines(reader *bufio.Reader, w io.Writer, opts StreamOptions) error {
	for {
		// Peek fills the buffer without consuming it, so a line with no
		// newline yet stays buffered. A line longer than the buffer is read
		// out as is.
		buf, err := reader.Peek(reader.Buffered() + 1)
		if bytes.IndexByte(buf, '\n') < 0 && err != bufio.ErrBufferFull {
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			continue
		}
		line, err := reader.ReadString('\n')
		if emitErr := emit(w, strings.TrimSuffix(line, "\n"), opts); emitErr != nil {
			return emitErr
		}
		if err != nil && err != io.EOF {
			return err
		}
	}
}
