// Package metadata models the typed projection of user metadata values.
// A JSON object attached to a reference is rewritten into one row per
// scalar (or per list element), each carrying exactly one typed value, so
// listing queries can filter on indexed columns instead of parsing JSON.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the typed column a projected value occupies.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNum
	KindStr
	KindJSON
)

// Value is a tagged variant mapped onto the four typed columns of the
// projection table. A KindNull value leaves all four columns null.
type Value struct {
	Kind Kind
	Bool bool
	Num  string // JSON numeric literal, bound with numeric affinity
	Str  string
	JSON json.RawMessage
}

// Row is one projection row: a key, an ordinal for list elements, and the
// typed value.
type Row struct {
	Key     string
	Ordinal int
	Value   Value
}

// DecodeObject parses a JSON object keeping numbers as json.Number so
// integer precision survives the round trip into the projection.
func DecodeObject(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("metadata must be a JSON object: %w", err)
	}
	return obj, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, json.Number, float64, int, int64, string:
		return true
	}
	return false
}

func scalarValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, Bool: x}
	case json.Number:
		return Value{Kind: KindNum, Num: x.String()}
	case float64:
		return Value{Kind: KindNum, Num: json.Number(fmt.Sprintf("%v", x)).String()}
	case int:
		return Value{Kind: KindNum, Num: fmt.Sprintf("%d", x)}
	case int64:
		return Value{Kind: KindNum, Num: fmt.Sprintf("%d", x)}
	case string:
		return Value{Kind: KindStr, Str: x}
	}
	raw, _ := json.Marshal(v)
	return Value{Kind: KindJSON, JSON: raw}
}

// ValueOf converts any decoded JSON value into its tagged form. Non-scalars
// are carried as raw JSON.
func ValueOf(v any) Value {
	return scalarValue(v)
}

// RowsForValue converts one metadata key/value into its projection rows.
// Scalars produce a single row; lists of scalars one row per element with
// ordinal set; anything else is carried as raw JSON.
func RowsForValue(key string, v any) []Row {
	if isScalar(v) {
		return []Row{{Key: key, Ordinal: 0, Value: scalarValue(v)}}
	}
	if list, ok := v.([]any); ok {
		allScalar := true
		for _, elem := range list {
			if !isScalar(elem) {
				allScalar = false
				break
			}
		}
		rows := make([]Row, 0, len(list))
		for i, elem := range list {
			if allScalar {
				rows = append(rows, Row{Key: key, Ordinal: i, Value: scalarValue(elem)})
			} else {
				raw, _ := json.Marshal(elem)
				rows = append(rows, Row{Key: key, Ordinal: i, Value: Value{Kind: KindJSON, JSON: raw}})
			}
		}
		return rows
	}
	raw, _ := json.Marshal(v)
	return []Row{{Key: key, Ordinal: 0, Value: Value{Kind: KindJSON, JSON: raw}}}
}

// RowsForObject projects a whole metadata object.
func RowsForObject(meta map[string]any) []Row {
	var rows []Row
	for _, key := range sortedKeys(meta) {
		rows = append(rows, RowsForValue(key, meta[key])...)
	}
	return rows
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
