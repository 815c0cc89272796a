package repository

import (
	"strconv"
	"strings"
	"time"
)

// CSV field codecs. Table cells are untyped strings; decoding is tolerant
// (a malformed number reads as zero) so one corrupted cell cannot take the
// whole table down.

func atoiLoose(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func decodeTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTimePtr(s string) *time.Time {
	t := decodeTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func encodeTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return encodeTime(*t)
}

func decodeIntPtr(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n := atoiLoose(s)
	return &n
}

func encodeIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return itoa(*n)
}

// Resolved flags are stored as yes/no in the CSV table.
func decodeBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

func encodeBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
