package router

import (
	"regexp"
	"strings"
)

// CommandRune starts every bot command.
const CommandRune = '.'

var (
	quotedTokenRe = regexp.MustCompile(`"[^"]+"|[^ ]+`)

	// unknownCommandRe matches things that look like a mistyped command
	// (at least two word characters after the dot) so we don't answer
	// every message that merely starts with punctuation.
	unknownCommandRe = regexp.MustCompile(`^\.\w\w.+`)
)

// SplitQuoted splits on spaces but keeps double-quoted runs together:
// `give "mr person" :)` -> ["give", "mr person", ":)"].
func SplitQuoted(s string) []string {
	matches := quotedTokenRe.FindAllString(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.ReplaceAll(m, `"`, "")
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// LooksLikeCommand reports whether tok resembles a mistyped command.
func LooksLikeCommand(tok string) bool { return unknownCommandRe.MatchString(tok) }
