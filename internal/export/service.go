// Package export runs a question through the pipeline and stores the
// normalized result as a Parquet object.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/storage"
)

// ContentType is the media type stored with every export object.
const ContentType = "application/vnd.apache.parquet"

var ErrUpload = errors.New("export upload failed")

type Preparer interface {
	Prepare(ctx context.Context, question string) (pipeline.Prepared, error)
}

type Service struct {
	Pipeline    Preparer
	ObjectStore storage.ObjectStore
	Logger      *slog.Logger
	Clock       func() time.Time
	NewID       func() string
}

type Result struct {
	Query     string `json:"query"`
	ObjectKey string `json:"object_key"`
	RowCount  int    `json:"row_count"`
	SizeBytes int64  `json:"size_bytes"`
}

// Export runs the sequential pipeline stages for question and uploads the
// result. Pipeline errors are returned unchanged.
func (s *Service) Export(ctx context.Context, question string) (result Result, err error) {
	defer func() {
		observability.ObserveExport(err, result.SizeBytes)
	}()

	prepared, err := s.Pipeline.Prepare(ctx, question)
	if err != nil {
		return Result{}, err
	}

	encoded, err := EncodeResultToParquet(prepared.Result)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode result: %w", ErrUpload, err)
	}

	key, err := storage.BuildExportPath(s.newID(), s.now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: build export path: %w", ErrUpload, err)
	}

	info, err := s.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: ContentType})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	size := info.Size
	if size <= 0 {
		size = int64(len(encoded.Data))
	}

	s.logger().InfoContext(ctx, "result exported",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("object_key", key),
		slog.Int("row_count", encoded.RowCount),
		slog.Int64("size_bytes", size),
	)
	return Result{
		Query:     prepared.SQL,
		ObjectKey: key,
		RowCount:  encoded.RowCount,
		SizeBytes: size,
	}, nil
}

// Open returns a previously exported object. Only keys produced by Export
// are accepted.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if err := storage.ValidateExportKey(key); err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	info, err := s.ObjectStore.Stat(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	body, err := s.ObjectStore.Get(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return body, info, nil
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return observability.NopLogger()
	}
	return s.Logger
}
