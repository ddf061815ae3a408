package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/adlift/bidpilot/internal/domain"
)

// DecisionArchiveStore provides the read access the archiver needs. The
// Postgres DecisionStore satisfies it through its ListBefore method.
type DecisionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.BidDecision, error)
}

// BlobWriter is the upload surface the archiver uses.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver queries decision rows older than a cutoff, serializes them to
// JSONL, and uploads the result to the archive bucket.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here. That is a separate, explicit step to be executed after the
// archive has been verified.
type Archiver struct {
	writer    BlobWriter
	decisions DecisionArchiveStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer BlobWriter, decisions DecisionArchiveStore) *Archiver {
	return &Archiver{
		writer:    writer,
		decisions: decisions,
	}
}

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveDecisions archives all decision rows strictly older than the cutoff
// to archive/decisions/YYYY-MM.jsonl and returns the number of archived rows
// and the object path. A zero count with an empty path means there was
// nothing to archive.
func (a *Archiver) ArchiveDecisions(ctx context.Context, before time.Time) (int64, string, error) {
	decisions, err := a.decisions.ListBefore(ctx, before)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	if len(decisions) == 0 {
		return 0, "", nil
	}

	buf, err := marshalJSONL(decisions)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive decisions marshal: %w", err)
	}

	path := archivePath("decisions", before)

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive decisions upload: %w", err)
	}

	return int64(len(decisions)), path, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/decisions/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
