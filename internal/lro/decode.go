package lro

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decoder converts a response body into a typed value. It decodes both the
// engine's own status shapes and the caller's declared result type.
type Decoder interface {
	Decode(data []byte, v any) error
}

// JSONDecoder decodes JSON bodies, tolerating a leading UTF-8 byte order mark
type JSONDecoder struct{}

var utf8BOM = []byte("\xef\xbb\xbf")

// Decode unmarshals data into v
func (JSONDecoder) Decode(data []byte, v any) error {
	data = bytes.TrimPrefix(data, utf8BOM)
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling type %T: %w", v, err)
	}
	return nil
}
