// Package client implements the host side of the file retrieval protocol:
// joining notification fragments into responses and tracking a download.
package client

import "strings"

// responsePrefixes open a new response. Continuation fragments start with
// hex digits, ":SEQ:" or the middle of a file list, none of which match.
var responsePrefixes = []string{
	"FILES:", "START:", "CHUNK:", "COMPLETE:", "CANCELLED:",
	"DELETED:", "STATUS:", "ERROR:", "TLM:",
}

func opensResponse(frag string) bool {
	for _, p := range responsePrefixes {
		if strings.HasPrefix(frag, p) {
			return true
		}
	}
	return false
}

// Reassembler joins fragments back into whole responses. Fragments must be
// at least as long as the longest prefix, which any MTU of 23 or more gives.
type Reassembler struct {
	cur strings.Builder
}

// Feed consumes one fragment and returns the response it completed, if any.
// The last response is only complete once the next one starts or Flush is called.
func (r *Reassembler) Feed(frag string) (string, bool) {
	frag = strings.TrimRight(frag, "\r\n")
	if frag == "" {
		return "", false
	}
	if opensResponse(frag) {
		prev, ok := r.Flush()
		r.cur.WriteString(frag)
		return prev, ok
	}
	r.cur.WriteString(frag)
	return "", false
}

// Flush returns the buffered response.
func (r *Reassembler) Flush() (string, bool) {
	if r.cur.Len() == 0 {
		return "", false
	}
	s := r.cur.String()
	r.cur.Reset()
	return s, true
}
