// Package feed reads system event streams from JSON Lines files, one
// {"type":..., "payload":...} envelope per line. In follow mode the reader
// tails the file like `tail -f`, waking on fsnotify writes.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"goaldeck/internal/events"
	"goaldeck/internal/logging"
)

// pollInterval re-checks the file in follow mode in case a write
// notification was coalesced or missed.
const pollInterval = 500 * time.Millisecond

// Options configures a FileSource.
type Options struct {
	// Follow keeps reading as the file grows instead of stopping at EOF.
	Follow bool
	// Strict fails on a malformed line instead of skipping it.
	Strict bool
	Log    *logging.Logger
}

// FileSource yields system events from a JSONL file.
type FileSource struct {
	path    string
	opts    Options
	file    *os.File
	reader  *bufio.Reader
	pending []byte // partial line read before EOF
	line    int

	watcher *fsnotify.Watcher
	log     *logging.Logger

	mu      sync.Mutex
	skipped int
	closed  bool
}

// Open opens path for reading.
func Open(path string, opts Options) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed %s: %w", path, err)
	}
	log := logging.OrDefault(opts.Log, logging.CategoryFeed)
	log.Info("Opened feed %s (follow=%v strict=%v)", path, opts.Follow, opts.Strict)
	return &FileSource{
		path:   path,
		opts:   opts,
		file:   f,
		reader: bufio.NewReader(f),
		log:    log,
	}, nil
}

// Next returns the next event. It returns io.EOF at the end of the file, or
// in follow mode when the file is removed or renamed.
func (s *FileSource) Next(ctx context.Context) (events.SystemEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, complete, err := s.readLine()
		if err != nil {
			return nil, err
		}
		if complete {
			ev, ok, err := s.decode(line)
			if err != nil {
				return nil, err
			}
			if ok {
				return ev, nil
			}
			continue
		}

		// At EOF with no complete line.
		if !s.opts.Follow {
			if rest := bytes.TrimSpace(s.pending); len(rest) > 0 {
				s.pending = nil
				ev, ok, err := s.decode(rest)
				if err != nil {
					return nil, err
				}
				if ok {
					return ev, nil
				}
			}
			return nil, io.EOF
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// readLine returns the next full line, or complete=false at EOF. Bytes read
// before EOF are kept until the rest of the line arrives.
func (s *FileSource) readLine() ([]byte, bool, error) {
	chunk, err := s.reader.ReadBytes('\n')
	s.pending = append(s.pending, chunk...)
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read feed %s: %w", s.path, err)
	}
	line := s.pending
	s.pending = nil
	return line, true, nil
}

// decode parses one line. Blank lines and lines starting with '#' are
// ignored; ok is false for lines that produced no event.
func (s *FileSource) decode(line []byte) (events.SystemEvent, bool, error) {
	s.line++
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return nil, false, nil
	}
	ev, err := events.DecodeSystem(line)
	if err != nil {
		if s.opts.Strict {
			return nil, false, fmt.Errorf("%s:%d: %w", s.path, s.line, err)
		}
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.log.Warn("Skipping %s:%d: %v", s.path, s.line, err)
		return nil, false, nil
	}
	return ev, true, nil
}

// wait blocks until the file may have grown.
func (s *FileSource) wait(ctx context.Context) error {
	if s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := w.Add(s.path); err != nil {
			w.Close()
			return fmt.Errorf("failed to watch %s: %w", s.path, err)
		}
		s.mu.Lock()
		s.watcher = w
		s.mu.Unlock()
		s.log.Debug("Watching %s for appends", s.path)
	}

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev, ok := <-s.watcher.Events:
		if !ok {
			return io.EOF
		}
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			s.log.Info("Feed %s was %s, ending stream", s.path, ev.Op)
			return io.EOF
		}
		return nil
	case err, ok := <-s.watcher.Errors:
		if !ok {
			return io.EOF
		}
		s.log.Error("Watcher error on %s: %v", s.path, err)
		return nil
	case <-timer.C:
		return nil
	}
}

// Skipped returns the number of malformed lines skipped so far.
func (s *FileSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close releases the file and the watcher.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}

// ReadAll decodes every event in a non-followed file.
func ReadAll(ctx context.Context, path string, opts Options) ([]events.SystemEvent, error) {
	opts.Follow = false
	src, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []events.SystemEvent
	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

// Write encodes evs as JSON Lines onto w.
func Write(w io.Writer, evs ...events.SystemEvent) error {
	bw := bufio.NewWriter(w)
	for _, ev := range evs {
		data, err := events.Encode(ev)
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
