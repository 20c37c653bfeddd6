package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// Accessor reads one candidate location for a field. ok is false when the
// location is absent or holds a value of the wrong shape.
type Accessor[T any] func(root gjson.Result) (value T, ok bool)

// First returns the value of the first accessor that reports ok, or def.
func First[T any](root gjson.Result, def T, accessors ...Accessor[T]) T {
	for _, acc := range accessors {
		if v, ok := acc(root); ok {
			return v
		}
	}
	return def
}

// scoreWrapperKeys are the keys of score objects carrying a computed value.
var scoreWrapperKeys = []string{"total", "value", "permanentTotal"}

// IntAt reads a number at path. Bare numbers, numeric strings ("+3",
// "30 ft.") and {total|value|permanentTotal} wrappers are accepted.
func IntAt(path string) Accessor[int] {
	return func(root gjson.Result) (int, bool) {
		return intOf(root.Get(path))
	}
}

// IntAtAny tries each path in order.
func IntAtAny(paths ...string) []Accessor[int] {
	out := make([]Accessor[int], 0, len(paths))
	for _, p := range paths {
		out = append(out, IntAt(p))
	}
	return out
}

func intOf(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		return int(v.Int()), true
	case gjson.String:
		return leadingInt(v.Str)
	case gjson.JSON:
		if !v.IsObject() {
			return 0, false
		}
		for _, k := range scoreWrapperKeys {
			if inner := v.Get(k); inner.Exists() && !inner.IsObject() {
				if n, ok := intOf(inner); ok {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// leadingInt parses an optionally signed integer prefix.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for i, r := range s {
		if i == 0 && (r == '+' || r == '-') {
			end = 1
			continue
		}
		if !unicode.IsDigit(r) {
			break
		}
		end = i + 1
	}
	digits := strings.TrimPrefix(s[:end], "+")
	if digits == "" || digits == "-" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// StringAt reads a non-empty string at path. Objects with a "name" key are
// read through it, so {"race":{"name":"Elf"}} and {"race":"Elf"} agree.
func StringAt(path string) Accessor[string] {
	return func(root gjson.Result) (string, bool) {
		return stringOf(root.Get(path))
	}
}

// StringAtAny tries each path in order.
func StringAtAny(paths ...string) []Accessor[string] {
	out := make([]Accessor[string], 0, len(paths))
	for _, p := range paths {
		out = append(out, StringAt(p))
	}
	return out
}

func stringOf(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		return s, s != ""
	case gjson.Number:
		return v.Raw, true
	case gjson.JSON:
		if v.IsObject() {
			return stringOf(v.Get("name"))
		}
	}
	return "", false
}

// signedString renders numbers as attack bonuses ("+5", "-1") and passes
// strings through.
func signedString(v gjson.Result) (string, bool) {
	if v.Type == gjson.Number {
		n := int(v.Int())
		if n >= 0 {
			return fmt.Sprintf("+%d", n), true
		}
		return strconv.Itoa(n), true
	}
	return stringOf(v)
}

// BoolAt reads a boolean at path; "true"/"yes"/1 are accepted.
func BoolAt(path string) Accessor[bool] {
	return func(root gjson.Result) (bool, bool) {
		v := root.Get(path)
		switch v.Type {
		case gjson.True:
			return true, true
		case gjson.False:
			return false, true
		case gjson.Number:
			return v.Int() != 0, true
		case gjson.String:
			switch strings.ToLower(strings.TrimSpace(v.Str)) {
			case "true", "yes", "y", "1":
				return true, true
			case "false", "no", "n", "0":
				return false, true
			}
		}
		return false, false
	}
}

// CollectionAt returns the array or object at path.
func CollectionAt(path string) Accessor[gjson.Result] {
	return func(root gjson.Result) (gjson.Result, bool) {
		v := root.Get(path)
		if v.IsArray() || v.IsObject() {
			return v, true
		}
		return gjson.Result{}, false
	}
}

// CollectionAtAny tries each path in order.
func CollectionAtAny(paths ...string) []Accessor[gjson.Result] {
	out := make([]Accessor[gjson.Result], 0, len(paths))
	for _, p := range paths {
		out = append(out, CollectionAt(p))
	}
	return out
}

// NameList normalizes an array or keyed object into an ordered list of
// names. Array items may be strings or objects with a name. Keyed object
// values may be strings, objects with a name, or anything else, in which
// case the key itself is the name. Keyed objects keep document order.
func NameList(v gjson.Result) []string {
	var names []string
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			if s, ok := stringOf(item); ok {
				names = append(names, s)
			}
			return true
		})
	case v.IsObject():
		v.ForEach(func(key, item gjson.Result) bool {
			if s, ok := stringOf(item); ok && item.Type != gjson.Number {
				names = append(names, s)
			} else if k := strings.TrimSpace(key.String()); k != "" {
				names = append(names, k)
			}
			return true
		})
	}
	return names
}

// appendUnique appends names not yet seen, preserving first-seen order.
// Matching is case-sensitive.
func appendUnique(dst []string, seen map[string]struct{}, names ...string) []string {
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		dst = append(dst, n)
	}
	return dst
}
