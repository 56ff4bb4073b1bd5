package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// Archiver moves aged journal events into JSONL segments in object storage.
// Each run drains events committed before the cutoff into one segment named by
// the sequence range it covers, then deletes the journaled rows. A segment is
// only deleted from the journal after the upload succeeded, so a crash between
// the two steps duplicates events in the archive rather than losing them.
type Archiver struct {
	writer  domain.BlobWriter
	journal domain.EventJournal
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, journal domain.EventJournal) *Archiver {
	return &Archiver{writer: writer, journal: journal}
}

// Archive drains all events committed strictly before the cutoff into one
// JSONL segment and removes them from the journal. It returns the number of
// archived events; zero with a nil error means there was nothing to archive.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.journal.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	first := events[0].Seq
	last := events[len(events)-1].Seq
	path := SegmentPath(first, last)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}

	if err := a.journal.DeleteThrough(ctx, last); err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive trim through %d: %w", last, err)
	}
	return int64(len(events)), nil
}

// SegmentPrefix is the key prefix for all archived event segments.
const SegmentPrefix = "archive/events/"

// SegmentPath builds the S3 key for one archive segment covering the
// inclusive sequence range [first, last].
//
//	archive/events/00000000000000000001-00000000000000004096.jsonl
func SegmentPath(first, last uint64) string {
	return fmt.Sprintf("%s%020d-%020d.jsonl", SegmentPrefix, first, last)
}

// SegmentReader reads archived event segments back, oldest first. Replay uses
// it to rebuild ledger state from the full event history.
type SegmentReader struct {
	reader domain.BlobReader
}

// NewSegmentReader creates a new SegmentReader.
func NewSegmentReader(reader domain.BlobReader) *SegmentReader {
	return &SegmentReader{reader: reader}
}

// ReadAll streams every archived event in sequence order to visit. Segment
// keys encode their sequence ranges, so lexicographic order is replay order.
func (r *SegmentReader) ReadAll(ctx context.Context, visit func(domain.Event) error) error {
	infos, err := r.reader.List(ctx, SegmentPrefix)
	if err != nil {
		return fmt.Errorf("s3blob: list segments: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })

	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".jsonl") {
			continue
		}
		if err := r.readSegment(ctx, info.Path, visit); err != nil {
			return err
		}
	}
	return nil
}

func (r *SegmentReader) readSegment(ctx context.Context, path string, visit func(domain.Event) error) error {
	body, err := r.reader.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: read segment %s: %w", path, err)
	}
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("s3blob: decode %s line %d: %w", path, line, err)
		}
		if err := visit(ev); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("s3blob: scan segment %s: %w", path, err)
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element becomes one compact JSON line.
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
