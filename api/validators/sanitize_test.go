package validators

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	cases := map[string]struct {
		in   string
		max  int
		want string
	}{
		"trims":             {in: "  soup  ", max: 10, want: "soup"},
		"drops control":     {in: "no\x00 ice\x1b", max: 0, want: "no ice"},
		"keeps newline":     {in: "well done\nno salt", max: 0, want: "well done\nno salt"},
		"cuts on runes":     {in: "crème brûlée", max: 5, want: "crème"},
		"no trailing blank": {in: "ab cd", max: 3, want: "ab"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := SanitizeString(tc.in, tc.max)
			require.Equal(t, tc.want, got)
			require.True(t, utf8.ValidString(got))
		})
	}
}
