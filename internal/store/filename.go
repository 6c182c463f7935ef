package store

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jcdickinson/ferrisdoc/internal/model"
)

const fileExt = ".json"

// FileName encodes a path as a filesystem-safe file name. Each identifier is
// percent-encoded outside [A-Za-z0-9_-] and the identifiers are joined with
// '.', which can therefore never occur inside an encoded identifier.
func FileName(p model.Path) string {
	parts := make([]string, len(p))
	for i, ident := range p {
		parts[i] = escapeIdent(ident)
	}
	return strings.Join(parts, ".") + fileExt
}

// ParseFileName reverses FileName.
func ParseFileName(name string) (model.Path, bool) {
	base, ok := strings.CutSuffix(name, fileExt)
	if !ok || base == "" {
		return nil, false
	}
	parts := strings.Split(base, ".")
	p := make(model.Path, len(parts))
	for i, part := range parts {
		ident, err := url.PathUnescape(part)
		if err != nil || ident == "" {
			return nil, false
		}
		p[i] = ident
	}
	return p, true
}

func escapeIdent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
