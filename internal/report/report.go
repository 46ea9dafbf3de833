// Package report turns server validation errors into display strings.
package report

import (
	"regexp"
	"strings"
)

// Entry is one server error item as sent in create and update responses.
type Entry struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// indexPrefix matches the "<n>: " error index the server's schema validator
// puts in front of every "instance..." message.
var indexPrefix = regexp.MustCompile(`^\s*\d+:\s*(instance)`)

// Clean strips the validator index and rewrites the nested separators of the
// instance path to slash form: "0: instance.a.b is required" becomes
// "instance.a/b is required". Other messages are returned trimmed.
func Clean(msg string) string {
	msg = strings.TrimSpace(msg)
	loc := indexPrefix.FindStringSubmatchIndex(msg)
	if loc == nil {
		return msg
	}
	rest := msg[loc[2]:]
	head, tail, found := strings.Cut(rest, " ")
	head = normalizeInstancePath(head)
	if !found {
		return head
	}
	return head + " " + tail
}

// normalizeInstancePath keeps the "instance." root marker and turns the
// remaining dots into slashes.
func normalizeInstancePath(token string) string {
	const root = "instance."
	if !strings.HasPrefix(token, root) {
		return token
	}
	return root + strings.ReplaceAll(token[len(root):], ".", "/")
}

// FormatEntry renders e as "[code] message".
func FormatEntry(e Entry) string {
	return "[" + strings.TrimSpace(e.Code) + "] " + Clean(e.Msg)
}

// Format renders entries one per line.
func Format(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, FormatEntry(e))
	}
	return strings.Join(lines, "\n")
}
