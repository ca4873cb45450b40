// Package config loads engine startup configuration from yaml. The outer
// kind/def envelope leaves room for other config kinds in the same file
// tree without fragmenting the loader.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dispatch/graph"
)

// Outer is the kind/def envelope wrapping every config document.
type Outer struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// Duration is a time.Duration that unmarshals from yaml as either a Go
// duration string ("250ms", "2s") or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if dur, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(dur)
		return nil
	}
	secs, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("config: bad duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std converts back to the stdlib type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Corridor is one weighted connection between two departments.
type Corridor struct {
	From   string  `yaml:"from"`
	To     string  `yaml:"to"`
	Weight float64 `yaml:"weight"`
}

// Request seeds one transport request at startup.
type Request struct {
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Type        string `yaml:"type"`
	Urgent      bool   `yaml:"urgent"`
}

// Config is the engine startup configuration. The yaml tags are lowercase
// because viper normalizes every key to lowercase before the re-marshal.
type Config struct {
	// SpeedFactor scales simulated seconds to wall time.
	SpeedFactor float64 `yaml:"speedfactor"`
	// CoalesceInterval separates back-to-back re-plan solves.
	CoalesceInterval Duration `yaml:"coalesceinterval"`
	// SolverTimeout bounds each ILP solve; zero solves to optimality.
	SolverTimeout Duration `yaml:"solvertimeout"`
	// RestThreshold and RestDuration apply to every new transporter.
	RestThreshold float64 `yaml:"restthreshold"`
	RestDuration  float64 `yaml:"restduration"`
	// Strategy names the initial planner.
	Strategy string `yaml:"strategy"`
	// SimInterval is the synthetic-load generator cadence.
	SimInterval Duration `yaml:"siminterval"`

	Departments []string  `yaml:"departments"`
	Corridors   []Corridor `yaml:"corridors"`

	// Transporters and Requests seed the initial world.
	Transporters []string  `yaml:"transporters"`
	Requests     []Request `yaml:"requests"`
}

// FromYaml reads and unwraps a Config document.
func FromYaml(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(filepath.Base(path))
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outer := &Outer{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, err
	}
	if outer.Kind != "DispatcherConfig" {
		return nil, fmt.Errorf("config: unexpected kind %q", outer.Kind)
	}

	// Round-trip the inner def through yaml to get typed fields.
	spec, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(spec, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildGraph constructs and validates the hospital graph from the
// configured layout.
func (c *Config) BuildGraph() (*graph.Graph, error) {
	corridors := make([]graph.Corridor, 0, len(c.Corridors))
	for _, cor := range c.Corridors {
		corridors = append(corridors, graph.Corridor(cor))
	}
	return graph.Build(c.Departments, corridors)
}

// Default returns the stock hospital: the full department list, its
// corridor layout, one transporter, and a handful of seed requests.
func Default() *Config {
	return &Config{
		SpeedFactor:   10,
		RestThreshold: 40,
		RestDuration:  15,
		Strategy:      "ilp:makespan",
		SimInterval:   Duration(10 * time.Second),
		Departments: []string{
			"Emergency", "ICU", "Surgery", "Radiology", "Reception",
			"Pediatrics", "Orthopedics", "Cardiology", "Neurology",
			"Pharmacy", "Laboratory", "General Ward", "Cafeteria",
			"Admin Office", "Transporter Lounge",
		},
		Corridors: []Corridor{
			{"Emergency", "ICU", 5}, {"ICU", "Surgery", 10},
			{"Surgery", "Radiology", 7}, {"Emergency", "Reception", 3},
			{"Reception", "Pediatrics", 4}, {"Pediatrics", "Orthopedics", 6},
			{"Orthopedics", "Cardiology", 8}, {"Cardiology", "Neurology", 9},
			{"Neurology", "Pharmacy", 5}, {"Pharmacy", "Laboratory", 4},
			{"Laboratory", "General Ward", 6}, {"General Ward", "Cafeteria", 7},
			{"Cafeteria", "Admin Office", 5}, {"Admin Office", "Reception", 6},
			{"Surgery", "General Ward", 8}, {"Radiology", "Neurology", 7},
			{"Transporter Lounge", "Reception", 2},
		},
		Transporters: []string{"Anna"},
		Requests: []Request{
			{Origin: "Pediatrics", Destination: "Cafeteria", Type: "stretcher"},
			{Origin: "Cafeteria", Destination: "Radiology", Type: "stretcher"},
			{Origin: "Emergency", Destination: "ICU", Type: "stretcher", Urgent: true},
			{Origin: "ICU", Destination: "Pediatrics", Type: "stretcher"},
		},
	}
}

// Merge fills zero-valued fields of c from the defaults.
func (c *Config) Merge(def *Config) {
	if c.SpeedFactor <= 0 {
		c.SpeedFactor = def.SpeedFactor
	}
	if c.RestThreshold <= 0 {
		c.RestThreshold = def.RestThreshold
	}
	if c.RestDuration <= 0 {
		c.RestDuration = def.RestDuration
	}
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.SimInterval <= 0 {
		c.SimInterval = def.SimInterval
	}
	if len(c.Departments) == 0 {
		c.Departments = def.Departments
		c.Corridors = def.Corridors
	}
}
