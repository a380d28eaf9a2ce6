package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/observability"
)

const defaultMaxScanBytes int64 = 10 * 1024 * 1024

// ScanArchive keeps a copy of an uploaded scan. *cloudinary.Archive implements it.
type ScanArchive interface {
	Upload(ctx context.Context, owner, name string, reader io.Reader) (string, error)
}

// ScanService transcribes photographed handwritten essays.
type ScanService interface {
	Transcribe(ctx context.Context, file *multipart.FileHeader, actor Actor) (dto.ScanResponse, error)
}

type scanService struct {
	grader  Grader
	archive ScanArchive
	maxSize int64
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewScanService constructs a scan service. archive may be nil.
func NewScanService(grader Grader, archive ScanArchive, maxBytes int64, logger zerolog.Logger) ScanService {
	if maxBytes <= 0 {
		maxBytes = defaultMaxScanBytes
	}
	return &scanService{
		grader:  grader,
		archive: archive,
		maxSize: maxBytes,
		tracer:  otel.Tracer("github.com/kurid3v/AVinci/internal/service/scan"),
		logger:  logger.With().Str("component", "scan_service").Logger(),
	}
}

func (s *scanService) Transcribe(ctx context.Context, file *multipart.FileHeader, actor Actor) (dto.ScanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "scan.transcribe")
	defer span.End()

	span.SetAttributes(attribute.Int64("scan.max_bytes", s.maxSize))
	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.ScanResponse{}, err
	}
	span.SetAttributes(
		attribute.String("scan.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("scan.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return dto.ScanResponse{}, s.reject(span, "size", ErrScanTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.ScanResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.ScanResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.ScanResponse{}, s.reject(span, "size", ErrScanTooLarge)
	}

	detected := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	span.SetAttributes(attribute.String("scan.detected_mime", detected))
	if !isAllowedImage(detected) {
		return dto.ScanResponse{}, s.reject(span, "type", ErrScanTypeNotAllowed)
	}

	resp := dto.ScanResponse{MimeType: detected}
	if s.archive != nil {
		url, err := s.archive.Upload(ctx, actor.ID, file.Filename, bytes.NewReader(buf.Bytes()))
		if err != nil {
			s.logger.Warn().Err(err).Str("actor_id", actor.ID).Msg("failed to archive scan")
		} else {
			resp.ArchiveURL = url
		}
	}

	text, err := s.grader.ImageToText(ctx, detected, buf.Bytes())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return dto.ScanResponse{}, err
	}
	resp.Text = text

	span.SetStatus(codes.Ok, "transcribed")
	return resp, nil
}

func (s *scanService) reject(span trace.Span, reason string, err error) error {
	observability.ScanRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected: "+reason)
	return err
}
