package config

import (
	_ "embed"
)

//go:embed defaults/laneduel.yaml
var defaultYAML []byte

// Default returns the built-in configuration. It mirrors defaults/laneduel.yaml
// and is used when the embedded file cannot be parsed.
func Default() Config {
	return Config{
		Track: TrackConfig{
			Width:         400,
			Height:        700,
			LanePadding:   20,
			CarWidthRatio: 0.176,
			BottomPadding: 64,
			EntryMargin:   12,
			ExitMargin:    80,
			CarSprite:     Size{W: 258, H: 388},
			BlockerSprite: Size{W: 255, H: 400},
			PitSprite:     Size{W: 197, H: 145},
		},
		Spawner: SpawnerConfig{
			BlockerChance:        0.5,
			LaneBias:             0.6,
			LaneRepeatWindowMs:   700,
			BaseDelayMs:          700,
			MinBaseDelayMs:       220,
			JitterMs:             600,
			MinJitterMs:          160,
			WallPenaltyMs:        350,
			WallZone:             0.7,
			BlockerTraverseMs:    1400,
			MinBlockerTraverseMs: 500,
			PitTraverseMs:        2800,
			MinPitTraverseMs:     800,
		},
		Run: RunConfig{
			Lives:           3,
			CollisionTickMs: 50,
			ScoreTickMs:     200,
			GraceMs:         600,
			RewardDivisor:   10,
		},
		Ramp: RampConfig{
			StepMs: 1000,
			Step:   0.03,
			Min:    1.0,
			Max:    3.0,
		},
		Room: RoomConfig{
			BestOf:           3,
			CodeLength:       6,
			LanePublishMs:    120,
			HeartbeatMs:      2000,
			ForfeitAfterMs:   15000,
			RoundDelayMs:     2500,
			TransactAttempts: 5,
			SubscribeBuffer:  16,
			PollIntervalMs:   250,
			RequestTimeoutMs: 5000,
			ReportTimeoutMs:  3000,
		},
		Store: StoreConfig{
			RoomsURL:     "sqlite://~/.laneduel/rooms.db",
			DBPath:       "~/.laneduel/laneduel.db",
			IdentityPath: "~/.laneduel/identity.yaml",
			LogPath:      "~/.laneduel/laneduel.log",
		},
	}
}
