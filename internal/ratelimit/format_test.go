package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "Now"},
		{"negative", -5 * time.Second, "Now"},
		{"subsecond rounds down", 900 * time.Millisecond, "Now"},
		{"seconds only", 12 * time.Second, "12s"},
		{"minutes pair", 3*time.Minute + 45*time.Second, "3m 45s"},
		{"hours pair", 5*time.Hour + 12*time.Minute, "5h 12m"},
		{"hours drops seconds", 5*time.Hour + 12*time.Minute + 59*time.Second, "5h 12m"},
		{"days pair", 2*24*time.Hour + 3*time.Hour, "2d 3h"},
		{"exact day", 24 * time.Hour, "1d 0h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatRemaining(tc.in))
		})
	}
}
