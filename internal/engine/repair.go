package engine

import (
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

var jsonNumber = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)

// repairJSON makes a best effort at turning near-JSON into JSON. It
// handles the mistakes models make most: single quoted strings, raw
// newlines in strings, bare keys and words, Python literals, missing or
// trailing commas, and unclosed strings or brackets. Valid input is
// returned unchanged. The result is not guaranteed to be valid.
func repairJSON(s string) string {
	if gjson.Valid(s) {
		return s
	}

	var (
		out       = make([]byte, 0, len(s)+16)
		closers   []byte
		inStr     bool
		quote     byte
		afterItem bool // the last token completed a value or key
	)
	sep := func() {
		if afterItem {
			out = append(out, ',')
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case c == '\\' && i+1 < len(s):
				if s[i+1] == '\'' {
					out = append(out, '\'')
				} else {
					out = append(out, c, s[i+1])
				}
				i++
			case c == quote:
				out = append(out, '"')
				inStr = false
				afterItem = true
			case c == '"':
				out = append(out, '\\', '"')
			case c == '\n':
				out = append(out, '\\', 'n')
			case c == '\r':
				out = append(out, '\\', 'r')
			case c == '\t':
				out = append(out, '\\', 't')
			default:
				out = append(out, c)
			}
			continue
		}

		switch c {
		case '"', '\'':
			sep()
			inStr, quote = true, c
			out = append(out, '"')
			afterItem = false
		case '{', '[':
			sep()
			if c == '{' {
				closers = append(closers, '}')
			} else {
				closers = append(closers, ']')
			}
			out = append(out, c)
			afterItem = false
		case '}', ']':
			at := lastIndexByte(closers, c)
			if at < 0 {
				continue // stray closer
			}
			out = trimTrailingComma(out)
			for j := len(closers) - 1; j >= at; j-- {
				out = append(out, closers[j])
			}
			closers = closers[:at]
			afterItem = true
		case ',':
			if afterItem {
				out = append(out, ',')
			}
			afterItem = false
		case ':':
			out = append(out, ':')
			afterItem = false
		case ' ', '\n', '\r', '\t':
			out = append(out, c)
		default:
			j := i
			for j < len(s) && !isDelim(s[j]) {
				j++
			}
			sep()
			out = append(out, bareWord(s[i:j])...)
			afterItem = true
			i = j - 1
		}
	}

	if inStr {
		out = append(out, '"')
	}
	out = trimTrailingComma(out)
	for j := len(closers) - 1; j >= 0; j-- {
		out = append(out, closers[j])
	}
	return string(out)
}

func bareWord(w string) string {
	switch w {
	case "true", "false", "null":
		return w
	case "True":
		return "true"
	case "False":
		return "false"
	case "None", "undefined":
		return "null"
	}
	if len(w) > 1 && w[0] == '+' {
		w = w[1:]
	}
	if jsonNumber.MatchString(w) {
		return w
	}
	return strconv.Quote(w)
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\n', '\r', '\t', ',', ':', '{', '}', '[', ']', '"', '\'':
		return true
	}
	return false
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func trimTrailingComma(out []byte) []byte {
	end := len(out)
	for end > 0 {
		switch out[end-1] {
		case ' ', '\n', '\r', '\t':
			end--
			continue
		}
		break
	}
	if end > 0 && out[end-1] == ',' {
		return append(out[:end-1], out[end:]...)
	}
	return out
}
