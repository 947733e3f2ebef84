package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// tokenClaims is the subset of the credential payload the guard inspects.
type tokenClaims struct {
	Exp int64  `json:"exp"`
	Sub string `json:"sub"`
}

// ValidateToken checks the structural shape and claimed expiry of a bearer
// credential: non-blank, exactly three dot-separated segments, middle
// segment decoding as base64url JSON, and exp (when present) still in the
// future. It does not verify a signature — the check is advisory; real
// authorization happens server-side. Pure function of (token, now).
func ValidateToken(token string, now time.Time) bool {
	_, ok := decodeClaims(token, now)
	return ok
}

func decodeClaims(token string, now time.Time) (tokenClaims, bool) {
	var claims tokenClaims

	if strings.TrimSpace(token) == "" {
		return claims, false
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return claims, false
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		// fail closed on anything that does not decode
		return claims, false
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, false
	}

	if claims.Exp != 0 && claims.Exp*1000 <= now.UnixMilli() {
		return claims, false
	}
	return claims, true
}

func decodeSegment(segment string) ([]byte, error) {
	// tolerate both padded and unpadded encodings
	trimmed := strings.TrimRight(segment, "=")
	return base64.RawURLEncoding.DecodeString(trimmed)
}
