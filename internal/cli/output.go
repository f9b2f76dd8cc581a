package cli

import (
	"encoding/json"
	"io"
)

// writeOutput writes v as indented JSON, or calls text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
