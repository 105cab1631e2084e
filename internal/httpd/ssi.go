package httpd

import (
	"bytes"
	"context"
	"fmt"
)

var (
	tagOpen  = []byte("<!--#")
	tagClose = []byte("-->")
)

// maxTagParts bounds a multipart tag that never reports its last part.
const maxTagParts = 1 << 16

// expand copies content to out, replacing every <!--#name--> whose name is
// a known tag with its inserts. Unknown tags are flagged in the output.
func (s *Server) expand(ctx context.Context, out *bytes.Buffer, content []byte) {
	if s.ssi == nil {
		out.Write(content)
		return
	}
	s.ssi.BeginPass(ctx)
	insert := make([]byte, s.opts.InsertLen)

	for {
		i := bytes.Index(content, tagOpen)
		if i < 0 {
			out.Write(content)
			return
		}
		out.Write(content[:i])
		rest := content[i+len(tagOpen):]
		j := bytes.Index(rest, tagClose)
		if j < 0 {
			out.Write(content[i:])
			return
		}
		name := string(bytes.TrimSpace(rest[:j]))
		content = rest[j+len(tagClose):]

		idx, ok := s.tags[name]
		if !ok {
			fmt.Fprintf(out, "<b>***UNKNOWN TAG %s***</b>", name)
			continue
		}
		part := 0
		for calls := 0; calls < maxTagParts; calls++ {
			written, next := s.ssi.Insert(ctx, idx, insert, part)
			if written > len(insert) {
				written = len(insert)
			}
			if written > 0 {
				out.Write(insert[:written])
			}
			if next == LastTagPart {
				break
			}
			part = next
		}
	}
}
