package recovery

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Modifiers are added to every base threshold when the calendar matches.
// Busy calendar days raise the bar for entering recovery.
type Modifiers struct {
	MajorHoliday int            `json:"major_holiday" yaml:"major_holiday" validate:"gte=0"`
	MinorHoliday int            `json:"minor_holiday" yaml:"minor_holiday" validate:"gte=0"`
	FirstFriday  int            `json:"first_friday" yaml:"first_friday" validate:"gte=0"`
	CreationDay  int            `json:"creation_day" yaml:"creation_day" validate:"gte=0"`
	Playoffs     int            `json:"playoffs" yaml:"playoffs" validate:"gte=0"`
	Championship int            `json:"championship" yaml:"championship" validate:"gte=0"`
	Seasons      map[string]int `json:"seasons,omitempty" yaml:"seasons,omitempty" validate:"dive,gte=0"`
}

// Config tunes the recovery state machine.
type Config struct {
	Base      engine.Thresholds `json:"base" yaml:"base"`
	Floors    engine.Thresholds `json:"floors" yaml:"floors"`
	Modifiers Modifiers         `json:"modifiers" yaml:"modifiers"`
}

// DefaultConfig returns the stock thresholds, floors and calendar modifiers.
func DefaultConfig() Config {
	return Config{
		Base:   engine.Thresholds{Light: 3, Moderate: 6, Heavy: 10},
		Floors: engine.Thresholds{Light: 2, Moderate: 4, Heavy: 7},
		Modifiers: Modifiers{
			MajorHoliday: 2,
			MinorHoliday: 1,
			FirstFriday:  1,
			CreationDay:  1,
			Playoffs:     1,
			Championship: 2,
		},
	}
}

// Validate checks threshold ordering and modifier signs.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid recovery config: %w", err)
	}
	return nil
}

// adjustment sums the modifiers that apply to a calendar.
func (m Modifiers) adjustment(cal engine.Calendar) int {
	adj := 0
	switch cal.HolidayPriority {
	case engine.HolidayMajor:
		adj += m.MajorHoliday
	case engine.HolidayMinor:
		adj += m.MinorHoliday
	}
	if cal.IsFirstFriday {
		adj += m.FirstFriday
	}
	if cal.IsCreationDay {
		adj += m.CreationDay
	}
	switch cal.SportsSeason {
	case engine.SportsPlayoffs:
		adj += m.Playoffs
	case engine.SportsChampionship:
		adj += m.Championship
	}
	adj += m.Seasons[strings.ToLower(cal.Season)]
	return adj
}
