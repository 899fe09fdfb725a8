package normalize

import (
	"regexp"
	"strings"
)

// markerPattern matches footnote markers like "[3†evidence]" and source
// markers like "【4:0†source】" left behind by file search citations.
var markerPattern = regexp.MustCompile(`\[\d+†evidence\]|【.*?†source】`)

// StripMarkers removes every citation marker from s. Removal repeats until no
// marker remains, so a marker exposed by an earlier removal is also dropped.
func StripMarkers(s string) string {
	if !strings.Contains(s, "†") {
		return s
	}
	for {
		out := markerPattern.ReplaceAllString(s, "")
		if out == s {
			return out
		}
		s = out
	}
}

// Clean strips markers from every string leaf of v.
func Clean(v Value) Value {
	return v.MapStrings(StripMarkers)
}

// Structured renders an already decoded payload.
func Structured(v Value) (string, error) {
	return Clean(v).Indent()
}

// Text normalizes a raw payload. JSON is cleaned and pretty-printed; any other
// text is returned unchanged.
func Text(payload string) string {
	v, err := Parse([]byte(payload))
	if err != nil {
		return payload
	}
	out, err := Structured(v)
	if err != nil {
		return payload
	}
	return out
}
