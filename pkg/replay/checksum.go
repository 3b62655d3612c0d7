package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Fingerprint is the ordered field set a cycle checksum is computed over.
type Fingerprint struct {
	Weather    string `json:"weather"`
	Holiday    string `json:"holiday"`
	Events     int    `json:"events"`
	StorySeeds int    `json:"story_seeds"`
	Bonds      int    `json:"bonds"`
	Illness    string `json:"illness"`
}

// FingerprintOf captures the checksum fields of a finished cycle.
func FingerprintOf(cc *engine.CycleContext) Fingerprint {
	weather := cc.WeatherType()
	if weather == "" {
		weather = "none"
	}
	holiday := cc.Calendar.Holiday
	if holiday == "" {
		holiday = "none"
	}
	return Fingerprint{
		Weather:    weather,
		Holiday:    holiday,
		Events:     len(cc.Events),
		StorySeeds: len(cc.StorySeeds),
		Bonds:      len(cc.Bonds),
		Illness:    fmt.Sprintf("%.2f", cc.Illness()),
	}
}

// String joins the fields in their fixed order.
func (f Fingerprint) String() string {
	return fmt.Sprintf("weather=%s|holiday=%s|events=%d|storySeeds=%d|bonds=%d|illness=%s",
		f.Weather, f.Holiday, f.Events, f.StorySeeds, f.Bonds, f.Illness)
}

// Sum returns the hex SHA-256 of the fingerprint string.
func (f Fingerprint) Sum() string {
	h := sha256.Sum256([]byte(f.String()))
	return hex.EncodeToString(h[:])
}

// FieldDiff is one field that differs between two fingerprints.
type FieldDiff struct {
	Field    string `json:"field"`
	Original string `json:"original"`
	Current  string `json:"current"`
}

// Diff lists the fields where current differs from f, in checksum order.
func (f Fingerprint) Diff(current Fingerprint) []FieldDiff {
	var diffs []FieldDiff
	add := func(field, a, b string) {
		if a != b {
			diffs = append(diffs, FieldDiff{Field: field, Original: a, Current: b})
		}
	}
	add("weather", f.Weather, current.Weather)
	add("holiday", f.Holiday, current.Holiday)
	add("events", strconv.Itoa(f.Events), strconv.Itoa(current.Events))
	add("storySeeds", strconv.Itoa(f.StorySeeds), strconv.Itoa(current.StorySeeds))
	add("bonds", strconv.Itoa(f.Bonds), strconv.Itoa(current.Bonds))
	add("illness", f.Illness, current.Illness)
	return diffs
}

// Checksum computes the cycle checksum and stores it in the summary.
func Checksum(cc *engine.CycleContext) string {
	sum := FingerprintOf(cc).Sum()
	cc.Summary.Checksum = sum
	return sum
}
