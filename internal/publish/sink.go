// Package publish delivers resolved build descriptors to their destinations:
// a writer, a local directory, an S3 bucket, or several of these at once.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"buildrecorder/internal/types"
)

// Sink accepts a finished build descriptor.
type Sink interface {
	Publish(ctx context.Context, d *types.BuildDescriptor) error
}

// encode renders d as indented JSON terminated by a newline.
func encode(d *types.BuildDescriptor) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode build descriptor", err)
	}
	return append(data, '\n'), nil
}

// WriterSink writes each descriptor as indented JSON to an io.Writer.
// Concurrent Publish calls are serialized.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Publish(_ context.Context, d *types.BuildDescriptor) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return types.NewAppError(types.ErrCodePublishFailed, "failed to write build descriptor", err)
	}
	return nil
}

// FileSink writes each descriptor to <dir>/<name>-<number>.json, replacing an
// existing file for the same build.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink rooted at dir. The directory is created on first
// publish.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Path returns the file a descriptor is written to.
func (s *FileSink) Path(d *types.BuildDescriptor) string {
	return filepath.Join(s.dir, safeName(d.Name)+"-"+safeName(d.Number)+".json")
}

func (s *FileSink) Publish(ctx context.Context, d *types.BuildDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(d)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodePublishFailed, "failed to create archive directory "+s.dir, err)
	}

	// Write to a temp file first so readers never see a partial descriptor.
	path := s.Path(d)
	tmp, err := os.CreateTemp(s.dir, ".build-info-*")
	if err != nil {
		return types.NewAppError(types.ErrCodePublishFailed, "failed to create temp file in "+s.dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return types.NewAppError(types.ErrCodePublishFailed, "failed to write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		return types.NewAppError(types.ErrCodePublishFailed, "failed to write "+path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return types.NewAppError(types.ErrCodePublishFailed, "failed to write "+path, err)
	}
	return nil
}

// safeName replaces path separators and other characters that are awkward in
// file names and object keys.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, s)
}

// MultiSink publishes to every sink concurrently. It returns the first error
// and cancels the context passed to the remaining sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out over sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, d *types.BuildDescriptor) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, sink := range m.sinks {
		i, sink := i, sink
		g.Go(func() error {
			if err := sink.Publish(gctx, d); err != nil {
				return fmt.Errorf("sink %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
