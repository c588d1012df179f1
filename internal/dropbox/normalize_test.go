package dropbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already normalized", "/docs/report.pdf", "/docs/report.pdf"},
		{"uppercase folded", "/Docs/Report.PDF", "/docs/report.pdf"},
		{"missing leading slash", "docs/report.pdf", "/docs/report.pdf"},
		{"trailing slash trimmed", "/docs/", "/docs"},
		{"empty stays empty", "", ""},
		{"decomposed unicode composed", "/cafe\u0301", "/caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}
