package sqlxrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePatterns(t *testing.T) {
	tests := []struct {
		val        string
		wantIlike  string
		wantPrefix string
	}{
		{val: "kim", wantIlike: "%kim%", wantPrefix: "kim%"},
		{val: "kim_", wantIlike: `%kim\_%`, wantPrefix: `kim\_%`},
		{val: "100%", wantIlike: `%100\%%`, wantPrefix: `100\%%`},
		{val: `a\b`, wantIlike: `%a\\b%`, wantPrefix: `a\\b%`},
		{val: "", wantIlike: "%%", wantPrefix: "%"},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			assert.Equal(t, tt.wantIlike, ilike(tt.val))
			assert.Equal(t, tt.wantPrefix, likePrefix(tt.val))
		})
	}
}
