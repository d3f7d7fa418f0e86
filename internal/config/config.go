// Package config provides YAML-based configuration for the lane game,
// the room protocol and the local stores.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root of laneduel.yaml.
type Config struct {
	Track   TrackConfig   `yaml:"track"`
	Spawner SpawnerConfig `yaml:"spawner"`
	Run     RunConfig     `yaml:"run"`
	Ramp    RampConfig    `yaml:"ramp"`
	Room    RoomConfig    `yaml:"room"`
	Store   StoreConfig   `yaml:"store"`
}

// TrackConfig describes the logical track the simulation runs on.
// All clients simulate the same logical track; the terminal view scales it.
type TrackConfig struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	LanePadding   float64 `yaml:"lane_padding"`
	CarWidthRatio float64 `yaml:"car_width_ratio"`
	BottomPadding float64 `yaml:"bottom_padding"`
	EntryMargin   float64 `yaml:"entry_margin"` // obstacles start this far above the top edge
	ExitMargin    float64 `yaml:"exit_margin"`  // and are dropped this far below the bottom

	// Sprite dimensions; obstacle sizes scale with car width.
	CarSprite     Size `yaml:"car_sprite"`
	BlockerSprite Size `yaml:"blocker_sprite"`
	PitSprite     Size `yaml:"pit_sprite"`
}

// Size is a width/height pair.
type Size struct {
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// SpawnerConfig holds obstacle spawning constants. Delays are in milliseconds
// at speed 1.0 and shrink inversely with speed.
type SpawnerConfig struct {
	BlockerChance        float64 `yaml:"blocker_chance"`
	LaneBias             float64 `yaml:"lane_bias"`
	LaneRepeatWindowMs   int     `yaml:"lane_repeat_window_ms"`
	BaseDelayMs          int     `yaml:"base_delay_ms"`
	MinBaseDelayMs       int     `yaml:"min_base_delay_ms"`
	JitterMs             int     `yaml:"jitter_ms"`
	MinJitterMs          int     `yaml:"min_jitter_ms"`
	WallPenaltyMs        int     `yaml:"wall_penalty_ms"`
	WallZone             float64 `yaml:"wall_zone"`
	BlockerTraverseMs    int     `yaml:"blocker_traverse_ms"`
	MinBlockerTraverseMs int     `yaml:"min_blocker_traverse_ms"`
	PitTraverseMs        int     `yaml:"pit_traverse_ms"`
	MinPitTraverseMs     int     `yaml:"min_pit_traverse_ms"`
}

// RunConfig holds the run state machine constants.
type RunConfig struct {
	Lives           int `yaml:"lives"`
	CollisionTickMs int `yaml:"collision_tick_ms"`
	ScoreTickMs     int `yaml:"score_tick_ms"`
	GraceMs         int `yaml:"grace_ms"`
	RewardDivisor   int `yaml:"reward_divisor"`
}

// RoomConfig holds multiplayer protocol settings.
type RoomConfig struct {
	BestOf           int `yaml:"best_of"`
	CodeLength       int `yaml:"code_length"`
	LanePublishMs    int `yaml:"lane_publish_ms"`
	HeartbeatMs      int `yaml:"heartbeat_ms"`
	ForfeitAfterMs   int `yaml:"forfeit_after_ms"` // 0 disables forfeit claims
	RoundDelayMs     int `yaml:"round_delay_ms"`
	TransactAttempts int `yaml:"transact_attempts"`
	SubscribeBuffer  int `yaml:"subscribe_buffer"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
	ReportTimeoutMs  int `yaml:"report_timeout_ms"`
}

// StoreConfig names the default stores.
type StoreConfig struct {
	RoomsURL     string `yaml:"rooms_url"`
	DBPath       string `yaml:"db_path"`
	IdentityPath string `yaml:"identity_path"`
	LogPath      string `yaml:"log_path"`
}

// Ms converts a millisecond count to a time.Duration.
func Ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Validate rejects configurations the simulation or protocol cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Track.Width <= 0 || c.Track.Height <= 0 {
		errs = append(errs, fmt.Errorf("track: width and height must be positive"))
	}
	if c.Track.CarWidthRatio <= 0 || c.Track.CarWidthRatio >= 0.5 {
		errs = append(errs, fmt.Errorf("track: car_width_ratio must be in (0, 0.5)"))
	}
	if c.Track.CarSprite.W <= 0 || c.Track.BlockerSprite.W <= 0 || c.Track.PitSprite.W <= 0 {
		errs = append(errs, fmt.Errorf("track: sprite sizes must be positive"))
	}
	if c.Spawner.BlockerChance < 0 || c.Spawner.BlockerChance > 1 {
		errs = append(errs, fmt.Errorf("spawner: blocker_chance must be in [0, 1]"))
	}
	if c.Spawner.LaneBias < 0 || c.Spawner.LaneBias > 1 {
		errs = append(errs, fmt.Errorf("spawner: lane_bias must be in [0, 1]"))
	}
	if c.Spawner.WallZone <= 0 || c.Spawner.WallZone > 1 {
		errs = append(errs, fmt.Errorf("spawner: wall_zone must be in (0, 1]"))
	}
	if c.Spawner.MinBaseDelayMs <= 0 || c.Spawner.MinBlockerTraverseMs <= 0 || c.Spawner.MinPitTraverseMs <= 0 {
		errs = append(errs, fmt.Errorf("spawner: minimum delays must be positive"))
	}
	if c.Run.Lives < 1 {
		errs = append(errs, fmt.Errorf("run: lives must be at least 1"))
	}
	if c.Run.CollisionTickMs <= 0 || c.Run.ScoreTickMs <= 0 || c.Ramp.StepMs <= 0 {
		errs = append(errs, fmt.Errorf("run: tick intervals must be positive"))
	}
	if c.Run.RewardDivisor <= 0 {
		errs = append(errs, fmt.Errorf("run: reward_divisor must be positive"))
	}
	if c.Ramp.Min <= 0 || c.Ramp.Max < c.Ramp.Min {
		errs = append(errs, fmt.Errorf("ramp: need 0 < min <= max"))
	}
	if c.Room.BestOf < 1 || c.Room.BestOf%2 == 0 {
		errs = append(errs, fmt.Errorf("room: best_of must be odd and at least 1"))
	}
	if c.Room.CodeLength < 4 {
		errs = append(errs, fmt.Errorf("room: code_length must be at least 4"))
	}
	if c.Room.TransactAttempts < 1 {
		errs = append(errs, fmt.Errorf("room: transact_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
