package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Field-path grammar over JSON payloads:
//
//	dot navigation      a.b.c         (numeric segment = array index)
//	array filter        items[key=value].field
//	array slice         items[1], items[0:5]   (response_path only)
//
// Paths are translated to gjson queries; slices are applied manually
// because they can only appear in response_path.

var filterSegmentRe = regexp.MustCompile(`^([a-zA-Z0-9_\-]*)\[([^\]=]+)=([^\]]+)\]$`)
var sliceSegmentRe = regexp.MustCompile(`^([a-zA-Z0-9_\-]*)\[(-?\d*):(-?\d*)\]$`)
var indexSegmentRe = regexp.MustCompile(`^([a-zA-Z0-9_\-]*)\[(\d+)\]$`)

// translateFieldPath converts the field-path grammar to gjson syntax
func translateFieldPath(path string) string {
	segments := strings.Split(path, ".")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if m := filterSegmentRe.FindStringSubmatch(seg); m != nil {
			if m[1] != "" {
				out = append(out, m[1])
			}
			out = append(out, fmt.Sprintf(`#(%s=="%s")`, m[2], m[3]))
			continue
		}
		out = append(out, seg)
	}
	return strings.Join(out, ".")
}

// extractValue resolves a field path against one item
func extractValue(item gjson.Result, path string) gjson.Result {
	if path == "" {
		return gjson.Result{}
	}
	return item.Get(translateFieldPath(path))
}

// navigateResponsePath walks the response path from the document root
// and returns the list items it selects. A terminal object is wrapped
// as a single-element list; an empty path treats the root itself as the
// item container.
func navigateResponsePath(body []byte, path string) ([]gjson.Result, error) {
	current := gjson.ParseBytes(body)

	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			if seg == "" {
				continue
			}

			if m := sliceSegmentRe.FindStringSubmatch(seg); m != nil {
				if m[1] != "" {
					current = current.Get(translateFieldPath(m[1]))
				}
				sliced, err := sliceArray(current, m[2], m[3])
				if err != nil {
					return nil, err
				}
				current = sliced
				continue
			}

			if m := indexSegmentRe.FindStringSubmatch(seg); m != nil {
				if m[1] != "" {
					current = current.Get(translateFieldPath(m[1]))
				}
				idx, _ := strconv.Atoi(m[2])
				arr := current.Array()
				if idx < 0 || idx >= len(arr) {
					return nil, fmt.Errorf("response_path index %d out of range (len %d)", idx, len(arr))
				}
				current = arr[idx]
				continue
			}

			current = current.Get(translateFieldPath(seg))
		}
	}

	if !current.Exists() {
		return nil, nil
	}
	if current.IsArray() {
		return current.Array(), nil
	}
	return []gjson.Result{current}, nil
}

// sliceArray applies [start:end] semantics to a gjson array, rebuilding
// a gjson.Result so navigation can continue
func sliceArray(current gjson.Result, startStr, endStr string) (gjson.Result, error) {
	arr := current.Array()
	start, end := 0, len(arr)

	if startStr != "" {
		v, err := strconv.Atoi(startStr)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("invalid slice start %q", startStr)
		}
		start = v
	}
	if endStr != "" {
		v, err := strconv.Atoi(endStr)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("invalid slice end %q", endStr)
		}
		end = v
	}
	if start < 0 {
		start = len(arr) + start
	}
	if end < 0 {
		end = len(arr) + end
	}
	if start < 0 {
		start = 0
	}
	if end > len(arr) {
		end = len(arr)
	}
	if start >= end {
		return gjson.Parse("[]"), nil
	}

	var b strings.Builder
	b.WriteByte('[')
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte(',')
		}
		b.WriteString(arr[i].Raw)
	}
	b.WriteByte(']')
	return gjson.Parse(b.String()), nil
}

// splitSelectorAttr splits a CSS extraction path "a.title@href" into
// selector and attribute. A bare selector returns text content.
func splitSelectorAttr(path string) (selector, attr string) {
	if at := strings.LastIndex(path, "@"); at >= 0 {
		return path[:at], path[at+1:]
	}
	return path, ""
}
