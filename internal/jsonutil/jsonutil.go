// Package jsonutil renders structs as one colorized "field: value" line per
// field, for terminal output.
package jsonutil

import (
	"bytes"
	"sort"

	"github.com/fatih/structs"
	"github.com/hokaccha/go-prettyjson"
)

func newLineFormatter() *prettyjson.Formatter {
	f := prettyjson.NewFormatter()
	f.Indent = 0
	f.Newline = ""
	return f
}

// MarshalLines encodes each field of v as compact colorized JSON, one field
// per line, sorted by field name.
func MarshalLines(v any) ([]byte, error) {
	f := newLineFormatter()
	fields := structs.Map(v)
	names := structs.Names(v)
	sort.Strings(names)
	var buf bytes.Buffer
	for _, name := range names {
		enc, err := f.Marshal(fields[name])
		if err != nil {
			return nil, err
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.Write(enc)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
