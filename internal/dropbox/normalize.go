package dropbox

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath produces the canonical form of a remote path used as the
// natural key in the metadata store: NFC Unicode normalization plus case
// folding. The provider's path_lower is already lowercase, but entries can
// also arrive from webhook payloads or user input with arbitrary casing and
// decomposed Unicode, so every path is normalized at the boundary.
func NormalizePath(p string) string {
	p = norm.NFC.String(p)
	p = strings.ToLower(p)

	if p == "" {
		return p
	}

	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return strings.TrimRight(p, "/")
}
