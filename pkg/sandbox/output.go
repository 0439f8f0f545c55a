package sandbox

import (
	"strings"
	"unicode/utf8"
)

const truncatedMarker = "\n... output truncated ..."

// outputBuffer collects printed text up to a byte limit.
type outputBuffer struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

func (o *outputBuffer) WriteString(s string) {
	if o.truncated {
		return
	}
	if o.limit > 0 && o.b.Len()+len(s) > o.limit {
		cut := o.limit - o.b.Len()
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		o.b.WriteString(s[:cut])
		o.truncated = true
		return
	}
	o.b.WriteString(s)
}

func (o *outputBuffer) String() string {
	if o.truncated {
		return o.b.String() + truncatedMarker
	}
	return o.b.String()
}
