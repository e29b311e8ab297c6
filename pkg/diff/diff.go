// Package diff computes structural differences between two JSON documents.
//
// Arrays are compared as objects keyed by index, so an insertion at the
// front of an array reports every later element as changed.
package diff

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/valyala/fastjson"
)

type Kind string

const (
	Added   Kind = "added"
	Removed Kind = "removed"
	Changed Kind = "changed"
)

// Entry is one difference. Value is set for Added and Removed, From and To
// for Changed.
type Entry struct {
	Kind  Kind            `json:"type"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
	From  json.RawMessage `json:"from,omitempty"`
	To    json.RawMessage `json:"to,omitempty"`
}

// Compare walks the union of the keys of a and b. Keys of a come first,
// followed by keys only present in b, each group in JavaScript property
// order.
func Compare(a, b *fastjson.Value) []Entry {
	return compare(a, b, "", nil)
}

func compare(a, b *fastjson.Value, prefix string, out []Entry) []Entry {
	left, right := membersOf(a), membersOf(b)

	for _, key := range unionKeys(left.keys, right.keys) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		l, r := left.values[key], right.values[key]
		switch {
		case structured(l) && structured(r):
			out = compare(l, r, path, out)
		case l == nil:
			out = append(out, Entry{Kind: Added, Path: path, Value: raw(r)})
		case r == nil:
			out = append(out, Entry{Kind: Removed, Path: path, Value: raw(l)})
		case !equal(l, r):
			out = append(out, Entry{Kind: Changed, Path: path, From: raw(l), To: raw(r)})
		}
	}
	return out
}

func structured(v *fastjson.Value) bool {
	if v == nil {
		return false
	}
	t := v.Type()
	return t == fastjson.TypeObject || t == fastjson.TypeArray
}

// equal compares primitives by value. Structured values never reach it
// paired with each other, so any structured operand is unequal.
func equal(a, b *fastjson.Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case fastjson.TypeNumber:
		return a.GetFloat64() == b.GetFloat64()
	case fastjson.TypeString:
		return bytes.Equal(a.GetStringBytes(), b.GetStringBytes())
	case fastjson.TypeTrue, fastjson.TypeFalse, fastjson.TypeNull:
		return true
	}
	return false
}

// members holds the own keys of an object or array in JavaScript property
// order, with each key bound to its value.
type members struct {
	keys   []string
	values map[string]*fastjson.Value
}

// membersOf enumerates v the way JavaScript does: array index keys ascending,
// then the rest in insertion order. A repeated key keeps its first position
// and its last value, as JSON.parse does.
func membersOf(v *fastjson.Value) members {
	switch v.Type() {
	case fastjson.TypeArray:
		items := v.GetArray()
		m := members{keys: make([]string, len(items)), values: make(map[string]*fastjson.Value, len(items))}
		for i, item := range items {
			key := strconv.Itoa(i)
			m.keys[i] = key
			m.values[key] = item
		}
		return m

	case fastjson.TypeObject:
		obj, _ := v.Object()
		values := make(map[string]*fastjson.Value, obj.Len())
		var indexes []uint64
		var names []string
		obj.Visit(func(k []byte, item *fastjson.Value) {
			key := string(k)
			if _, dup := values[key]; !dup {
				if n, ok := arrayIndex(key); ok {
					indexes = append(indexes, n)
				} else {
					names = append(names, key)
				}
			}
			values[key] = item
		})
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

		keys := make([]string, 0, len(indexes)+len(names))
		for _, n := range indexes {
			keys = append(keys, strconv.FormatUint(n, 10))
		}
		return members{keys: append(keys, names...), values: values}
	}
	return members{}
}

func unionKeys(a, b []string) []string {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, group := range [][]string{a, b} {
		for _, k := range group {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// arrayIndex reports whether key is a canonical array index such as "0" or
// "42", but not "01" or "-1".
func arrayIndex(key string) (uint64, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == 1<<32-1 {
		return 0, false
	}
	return n, true
}

// raw re-encodes v as JSON. fastjson writes unescaped strings with Go
// quoting, which is not valid JSON for control characters.
func raw(v *fastjson.Value) json.RawMessage {
	return json.RawMessage(appendValue(nil, v))
}

func appendValue(dst []byte, v *fastjson.Value) []byte {
	switch v.Type() {
	case fastjson.TypeString:
		return appendString(dst, v.GetStringBytes())
	case fastjson.TypeObject:
		m := membersOf(v)
		dst = append(dst, '{')
		for i, key := range m.keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, []byte(key))
			dst = append(dst, ':')
			dst = appendValue(dst, m.values[key])
		}
		return append(dst, '}')
	case fastjson.TypeArray:
		dst = append(dst, '[')
		for i, item := range v.GetArray() {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendValue(dst, item)
		}
		return append(dst, ']')
	default:
		return v.MarshalTo(dst)
	}
}

func appendString(dst, s []byte) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(string(s)); err != nil {
		return append(dst, `""`...)
	}
	return append(dst, bytes.TrimSuffix(buf.Bytes(), []byte("\n"))...)
}
