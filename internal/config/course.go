package config

import (
	"crypto/sha256"
	"encoding/hex"

	"gopkg.in/yaml.v3"
)

// course lists every section that shapes the obstacle stream or the run
// rules. Two clients simulate the same course from one seed only when these
// match exactly.
type course struct {
	Track   TrackConfig   `yaml:"track"`
	Spawner SpawnerConfig `yaml:"spawner"`
	Run     RunConfig     `yaml:"run"`
	Ramp    RampConfig    `yaml:"ramp"`
}

// CourseFingerprint returns a short hash of the course sections. Room and
// store settings do not contribute.
func (c Config) CourseFingerprint() string {
	data, err := yaml.Marshal(course{Track: c.Track, Spawner: c.Spawner, Run: c.Run, Ramp: c.Ramp})
	if err != nil {
		// Only numeric fields; cannot fail.
		panic("config: cannot marshal course: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
