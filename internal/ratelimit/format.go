package ratelimit

import (
	"fmt"
	"time"
)

// FormatRemaining renders a remaining duration as the coarsest non-zero
// unit pair, rounding down: "2d 3h", "5h 12m", "3m 45s", "12s", or "Now"
// when nothing remains.
func FormatRemaining(d time.Duration) string {
	if d < time.Second {
		return "Now"
	}

	totalSeconds := int64(d / time.Second)
	days := totalSeconds / 86400
	hours := (totalSeconds % 86400) / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
