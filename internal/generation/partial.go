package generation

import (
	"encoding/json"
	"strings"
)

// CompletePartial closes a truncated JSON document so it parses. It first
// tries to close the open string and every open container. When that is not
// valid (a dangling key, comma, literal or escape) it falls back to the last
// position where the document was known to be complete and closes from
// there. It reports false when no usable prefix exists yet.
func CompletePartial(prefix string) (string, bool) {
	var (
		stack    []byte
		inString bool
		escaped  bool
		cut      = -1
		cutStack []byte
	)
	mark := func(pos int) {
		cut = pos
		cutStack = append(cutStack[:0], stack...)
	}

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
			mark(i + 1)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
			mark(i + 1)
		case ',':
			mark(i)
		}
	}

	if len(stack) == 0 && !inString {
		doc := strings.TrimSpace(prefix)
		if doc != "" && json.Valid([]byte(doc)) {
			return doc, true
		}
	}

	body := prefix
	if escaped {
		body = body[:len(body)-1]
	}
	if inString {
		body += `"`
	}
	if candidate := body + closers(stack); json.Valid([]byte(candidate)) {
		return candidate, true
	}
	if cut < 0 {
		return "", false
	}
	candidate := prefix[:cut] + closers(cutStack)
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

func closers(stack []byte) string {
	var sb strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			sb.WriteByte('}')
		} else {
			sb.WriteByte(']')
		}
	}
	return sb.String()
}
