package output

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// writeFiltered runs the configured jq filter over the response data and
// writes each result as its own JSON document.
func (w *Writer) writeFiltered(resp *Response) error {
	query, err := gojq.Parse(w.opts.JQ)
	if err != nil {
		return ErrUsageHint(fmt.Sprintf("Invalid --jq filter: %v", err), "See https://jqlang.github.io/jq/manual/")
	}

	input, err := jqValue(resp.Data)
	if err != nil {
		return err
	}

	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			if haltErr, ok := err.(*gojq.HaltError); ok && haltErr.Value() == nil {
				return nil
			}
			return ErrUsage(fmt.Sprintf("jq: %v", err))
		}
		if err := w.writeJSON(v); err != nil {
			return err
		}
	}
}

// jqValue converts data into the plain JSON value types gojq operates on.
func jqValue(data any) (any, error) {
	var raw []byte
	switch d := data.(type) {
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
