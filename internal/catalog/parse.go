package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	doubleQuoted = regexp.MustCompile(`"(.*?)"`)
	singleQuoted = regexp.MustCompile(`'([^']*)'`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ParseList extracts the names from an encoded list such as
// `['Dua Lipa', "Guns N' Roses"]`. Double-quoted tokens are tried first; only
// when none exist are single-quoted tokens used. Empty names are dropped.
func ParseList(raw string) []string {
	matches := doubleQuoted.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		matches = singleQuoted.FindAllStringSubmatch(raw, -1)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if name := CleanString(m[1]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// CleanString applies NFC normalization, trims and collapses whitespace
func CleanString(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	return whitespace.ReplaceAllString(s, " ")
}

var releaseLayouts = []string{"2006-01-02", "2006-01", "2006"}

// ParseReleaseDate parses YYYY, YYYY-MM or YYYY-MM-DD
func ParseReleaseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range releaseLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized release date %q", raw)
}

// ParsePopularity parses an integer popularity in [0, 100]. Values written
// as floats ("57.0") are accepted when integral.
func ParsePopularity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("popularity %q is not an integer", raw)
		}
		n = int(f)
	}
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("popularity %d out of range 0-100", n)
	}
	return n, nil
}
