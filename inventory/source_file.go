package inventory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"

	"pruneware/logger"

	"github.com/pkg/errors"
)

// FileSource reads RawRecords from a JSON array or an NDJSON file, as
// produced by an exported scan or a remote collector.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Records(ctx context.Context) ([]RawRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open inventory file")
	}
	defer f.Close()
	return DecodeRecords(ctx, f)
}

// DecodeRecords accepts either a single JSON array or one JSON object per
// line. Elements that fail to decode are dropped with a warning.
func DecodeRecords(ctx context.Context, r io.Reader) ([]RawRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read inventory")
	}
	if first == '[' {
		var raw []json.RawMessage
		if err := json.NewDecoder(br).Decode(&raw); err != nil {
			return nil, errors.Wrap(err, "decode inventory array")
		}
		records := make([]RawRecord, 0, len(raw))
		for i, msg := range raw {
			if rec, ok := decodeRecord(msg, i+1); ok {
				records = append(records, rec)
			}
		}
		return records, nil
	}

	var records []RawRecord
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line%1024 == 0 && ctx.Err() != nil {
			return records, ctx.Err()
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if rec, ok := decodeRecord(data, line); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return records, errors.Wrap(err, "scan inventory lines")
	}
	return records, nil
}

func decodeRecord(data []byte, pos int) (RawRecord, bool) {
	var rec RawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warnf("Skipping malformed inventory record %d: %v", pos, err)
		return RawRecord{}, false
	}
	if rec.Source == "" {
		rec.Source = SourceRegistry64
	}
	return rec, true
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
