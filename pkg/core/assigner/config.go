package assigner

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Weights are the score contributions of each soft signal
type Weights struct {
	Preferred    float64 `yaml:"preferred" validate:"gte=0"`
	Possible     float64 `yaml:"possible" validate:"gte=0"`
	Language     float64 `yaml:"language" validate:"gte=0"`
	Availability float64 `yaml:"availability" validate:"gte=0"`
	RoleBonus    float64 `yaml:"roleBonus" validate:"gte=0"`
}

// Config tunes the assignment engine. Every field can be overridden from the config file.
type Config struct {
	// AutoApprovePending flips a pending request to approved when its publisher is assigned
	AutoApprovePending bool `yaml:"autoApprovePending"`

	// UseFairness enables the recent-assignment penalty
	UseFairness bool `yaml:"useFairness"`

	// FairnessWindowWeeks is the trailing window used to count recent assignments
	FairnessWindowWeeks int `yaml:"fairnessWindowWeeks" validate:"min=1,max=52"`

	// MaxAssignPerRun caps how many shifts a single batch processes
	MaxAssignPerRun int `yaml:"maxAssignPerRun" validate:"min=1"`

	// DaysAhead is the default batch horizon when no explicit range is given
	DaysAhead int `yaml:"daysAhead" validate:"min=0,max=366"`

	Weights Weights `yaml:"weights"`

	// PenaltyPerRecentShift is subtracted once per recent assignment
	PenaltyPerRecentShift float64 `yaml:"penaltyPerRecentShift" validate:"gte=0"`
}

// DefaultConfig returns the weights the congregation has been running with
func DefaultConfig() Config {
	return Config{
		AutoApprovePending:  true,
		UseFairness:         true,
		FairnessWindowWeeks: 4,
		MaxAssignPerRun:     200,
		DaysAhead:           14,
		Weights: Weights{
			Preferred:    30,
			Possible:     10,
			Language:     10,
			Availability: 20,
			RoleBonus:    5,
		},
		PenaltyPerRecentShift: 1,
	}
}

var validate = validator.New()

// Validate checks the configuration bounds
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("engine config validation failed: %w", err)
	}
	return nil
}
