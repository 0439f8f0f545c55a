package oracle

import "strings"

const fence = "```"

// ExtractCode returns the body of the first fenced block tagged javascript,
// js, or untagged. When the reply has no such block the whole reply is
// treated as code. An unterminated fence runs to the end of the reply.
func ExtractCode(reply string) string {
	rest := reply
	for {
		start := strings.Index(rest, fence)
		if start < 0 {
			return strings.TrimSpace(reply)
		}
		after := rest[start+len(fence):]

		nl := strings.IndexByte(after, '\n')
		var info, body string
		if nl < 0 {
			info, body = after, ""
		} else {
			info, body = after[:nl], after[nl+1:]
		}

		end := strings.Index(body, fence)
		if accepted(strings.TrimSpace(info)) {
			if end < 0 {
				return strings.TrimSpace(body)
			}
			return strings.TrimSpace(body[:end])
		}
		if end < 0 {
			return strings.TrimSpace(reply)
		}
		// Skip the closing fence of a block in another language.
		rest = body[end+len(fence):]
	}
}

func accepted(info string) bool {
	switch strings.ToLower(info) {
	case "", "javascript", "js":
		return true
	}
	return false
}
