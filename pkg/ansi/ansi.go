// Package ansi translates %c color codes embedded in game text into
// ANSI escape sequences for terminal display.
//
// The %c markup is what builders type into descriptions and channel
// messages: %ch%crHello%cn renders "Hello" in hilited red and resets.
// Lowercase color letters select the foreground, uppercase the
// background. Codes that are not recognized pass through unmodified so
// literal percent signs in old data survive a render/strip cycle.
package ansi

import (
	"strings"
	"unicode/utf8"
)

// Terminal control sequences used by the %c codes.
const (
	Normal    = "\033[0m"
	Hilite    = "\033[1m"
	Underline = "\033[4m"
	Blink     = "\033[5m"
	Inverse   = "\033[7m"
)

// code returns the escape sequence for the character following %c, or
// "" when the character is not a recognized code.
func code(ch byte) string {
	switch ch {
	case 'n':
		return Normal
	case 'h':
		return Hilite
	case 'u':
		return Underline
	case 'f':
		return Blink
	case 'i':
		return Inverse
	case 'x':
		return "\033[30m"
	case 'r':
		return "\033[31m"
	case 'g':
		return "\033[32m"
	case 'y':
		return "\033[33m"
	case 'b':
		return "\033[34m"
	case 'm':
		return "\033[35m"
	case 'c':
		return "\033[36m"
	case 'w':
		return "\033[37m"
	case 'X':
		return "\033[40m"
	case 'R':
		return "\033[41m"
	case 'G':
		return "\033[42m"
	case 'Y':
		return "\033[43m"
	case 'B':
		return "\033[44m"
	case 'M':
		return "\033[45m"
	case 'C':
		return "\033[46m"
	case 'W':
		return "\033[47m"
	}
	return ""
}

// Parse substitutes every recognized %c code in s with its ANSI escape
// sequence. When at least one substitution happened a trailing reset is
// appended so color never bleeds into following output. Unrecognized
// codes are left in place.
func Parse(s string) string {
	if !strings.Contains(s, "%c") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(Normal))
	colored := false
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+2 < len(s) && s[i+1] == 'c' {
			if esc := code(s[i+2]); esc != "" {
				b.WriteString(esc)
				colored = true
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	if colored && !strings.HasSuffix(b.String(), Normal) {
		b.WriteString(Normal)
	}
	return b.String()
}

// Strip removes every recognized %c code from s, returning the text as
// it would appear on a terminal without color support. Unrecognized
// codes are kept verbatim.
func Strip(s string) string {
	if !strings.Contains(s, "%c") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+2 < len(s) && s[i+1] == 'c' {
			if code(s[i+2]) != "" {
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Length reports the number of visible runes in s once its %c codes
// are removed. Useful for padding columns that contain colored text.
func Length(s string) int {
	return utf8.RuneCountInString(Strip(s))
}
