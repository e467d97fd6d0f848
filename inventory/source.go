package inventory

import (
	"context"
	"time"

	"pruneware/logger"

	"github.com/pkg/errors"
)

// ErrUnsupportedPlatform is returned by OS-backed sources on platforms that
// have no uninstall registry.
var ErrUnsupportedPlatform = errors.New("inventory source not supported on this platform")

// RecordSource yields raw records from one OS inventory. A source may return
// partial results together with an error.
type RecordSource interface {
	Name() string
	Records(ctx context.Context) ([]RawRecord, error)
}

// Collect concatenates the records of every source in order. Each source
// runs under its own timeout; failing sources are logged and skipped so a
// single broken inventory never fails the scan.
func Collect(ctx context.Context, timeout time.Duration, sources ...RecordSource) []RawRecord {
	var all []RawRecord
	for _, src := range sources {
		if ctx.Err() != nil {
			logger.Warnf("Scan interrupted before source %s", src.Name())
			break
		}
		records, err := collectOne(ctx, timeout, src)
		if err != nil {
			logger.Warnf("Source %s failed: %v", src.Name(), err)
		}
		logger.Debugf("Source %s returned %d records", src.Name(), len(records))
		all = append(all, records...)
	}
	return all
}

func collectOne(ctx context.Context, timeout time.Duration, src RecordSource) ([]RawRecord, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		records []RawRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := src.Records(ctx)
		done <- result{records, err}
	}()
	select {
	case res := <-done:
		return res.records, res.err
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "source %s", src.Name())
	}
}
