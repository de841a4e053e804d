// Package jsonpath reads loosely-shaped JSON documents with dotted paths
// such as "data.pix.end2EndId" or "receipt.0.identifier".
package jsonpath

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Decode parses a JSON object keeping numbers as json.Number.
func Decode(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get walks path through nested objects and arrays.
func Get(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// String returns the scalar at path as text. Empty strings count as missing.
func String(doc map[string]any, path string) (string, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return "", false
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(x)
	default:
		return "", false
	}
	return s, s != ""
}

// First returns the first non-empty string found among paths.
func First(doc map[string]any, paths ...string) (string, bool) {
	for _, p := range paths {
		if s, ok := String(doc, p); ok {
			return s, true
		}
	}
	return "", false
}

// Decimal reads a numeric value (number or numeric string) at path.
func Decimal(doc map[string]any, path string) (decimal.Decimal, bool) {
	s, ok := String(doc, path)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Object returns the nested object at path.
func Object(doc map[string]any, path string) (map[string]any, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
