package embed

import (
	"fmt"
	"math"
)

// Config holds the node2vec hyperparameters.
type Config struct {
	Dimensions int     `yaml:"dimensions"`
	WalkLength int     `yaml:"walk_length"`
	NumWalks   int     `yaml:"num_walks"`
	Window     int     `yaml:"window"`
	P          float64 `yaml:"p"` // return parameter
	Q          float64 `yaml:"q"` // in-out parameter
	Negative   int     `yaml:"negative"`
	NSExponent float64 `yaml:"ns_exponent"`
	Workers    int     `yaml:"workers"`
	Epochs     int     `yaml:"epochs"`
	Alpha      float64 `yaml:"alpha"`
	MinAlpha   float64 `yaml:"min_alpha"`
	Seed       uint64  `yaml:"seed"`
}

// DefaultConfig returns the settings the recommender has always been trained with.
func DefaultConfig() Config {
	return Config{
		Dimensions: 100,
		WalkLength: 30,
		NumWalks:   1000,
		Window:     10,
		P:          1.0,
		Q:          1.0,
		Negative:   5,
		NSExponent: 1.0,
		Workers:    4,
		Epochs:     5,
		Alpha:      0.025,
		MinAlpha:   0.0001,
		Seed:       1,
	}
}

// Validate checks that training can run with c.
func (c Config) Validate() error {
	switch {
	case c.Dimensions <= 0:
		return fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	case c.WalkLength < 2:
		return fmt.Errorf("walk_length must be at least 2, got %d", c.WalkLength)
	case c.NumWalks <= 0:
		return fmt.Errorf("num_walks must be positive, got %d", c.NumWalks)
	case c.Window <= 0:
		return fmt.Errorf("window must be positive, got %d", c.Window)
	case !(c.P > 0) || math.IsInf(c.P, 0):
		return fmt.Errorf("p must be a positive number, got %v", c.P)
	case !(c.Q > 0) || math.IsInf(c.Q, 0):
		return fmt.Errorf("q must be a positive number, got %v", c.Q)
	case c.Negative < 0:
		return fmt.Errorf("negative must not be negative, got %d", c.Negative)
	case math.IsNaN(c.NSExponent) || math.IsInf(c.NSExponent, 0):
		return fmt.Errorf("ns_exponent must be finite, got %v", c.NSExponent)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case !(c.Alpha > 0):
		return fmt.Errorf("alpha must be positive, got %v", c.Alpha)
	case c.MinAlpha < 0 || c.MinAlpha > c.Alpha:
		return fmt.Errorf("min_alpha must be in [0, alpha], got %v", c.MinAlpha)
	}
	return nil
}
