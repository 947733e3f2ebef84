package model

import "encoding/json"

// GameSession is the provably-fair token issued at game start. The server
// seed is generated from a cryptographically secure source; at rest it is
// sealed with envelope encryption and only the SHA-256 commitment hash is
// disclosed to the client until verification reveals the seed.
type GameSession struct {
	SessionID  string          `json:"session_id"`
	GameID     string          `json:"game_id"`
	ActorID    string          `json:"actor_id"`
	StartTime  int64           `json:"start_time"` // ms epoch
	ServerSeed string          `json:"server_seed,omitempty"`
	SealedSeed json.RawMessage `json:"sealed_seed,omitempty"`
	SeedHash   string          `json:"seed_hash"`
}

// GameResult is the claimed outcome submitted for verification.
type GameResult struct {
	CoinsEarned int64          `json:"coins_earned"`
	Outcome     string         `json:"outcome,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// VerifyResult is the advisory fairness verdict. ServerSeed is revealed only
// on a valid result so the client can independently check the outcome.
type VerifyResult struct {
	IsValid    bool   `json:"is_valid"`
	Reason     string `json:"reason,omitempty"`
	ServerSeed string `json:"server_seed,omitempty"`
	SeedHash   string `json:"seed_hash,omitempty"`
}
