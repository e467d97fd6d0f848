//go:build !jsonv2

package output

import (
	"encoding/json"
	"io"
)

// encodeRecord writes value as a single JSON line.
func encodeRecord(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}
