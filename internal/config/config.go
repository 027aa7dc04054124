// Package config loads and validates run configuration.
//
// Values are layered: Default, then an optional YAML file, then command-line
// flags applied by the caller. Validate checks the result against an embedded
// CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/master"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/resource"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/worker"
)

//go:embed schema.cue
var schemaSource string

// DefaultLogPath is the completion log written when no path is given.
const DefaultLogPath = "test.out"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of run parameters.
type Config struct {
	Workers          int           `yaml:"workers" json:"workers"`
	LogPath          string        `yaml:"log_path" json:"log_path"`
	MaxDuration      time.Duration `yaml:"max_duration" json:"max_duration"`
	ClockLimit       uint32        `yaml:"clock_limit_seconds" json:"clock_limit_seconds"`
	SpawnLimit       int           `yaml:"spawn_limit" json:"spawn_limit"`
	Tick             uint64        `yaml:"tick_nanos" json:"tick_nanos"`
	Grace            time.Duration `yaml:"grace" json:"grace"`
	BudgetMax        uint32        `yaml:"budget_max" json:"budget_max"`
	TimerPeriod      time.Duration `yaml:"timer_period" json:"timer_period"`
	RecoverLostToken bool          `yaml:"recover_lost_token" json:"recover_lost_token"`

	// Database is the SQLite run log path. Empty disables persistence.
	Database string `yaml:"database" json:"database"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:          master.DefaultWorkers,
		LogPath:          DefaultLogPath,
		MaxDuration:      master.DefaultMaxDuration,
		ClockLimit:       master.DefaultClockLimit,
		SpawnLimit:       master.DefaultSpawnLimit,
		Tick:             vclock.DefaultTick,
		Grace:            resource.DefaultGrace,
		BudgetMax:        worker.DefaultBudgetMax,
		TimerPeriod:      master.DefaultTimerPeriod,
		RecoverLostToken: true,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over the defaults. An empty document yields the
// defaults unchanged.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks cfg against the schema. The error lists every violation.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, details(err))
	}
	return nil
}

func details(err error) string {
	var lines []string
	for _, e := range cueerrors.Errors(err) {
		lines = append(lines, strings.TrimSpace(cueerrors.Details(e, nil)))
	}
	return strings.Join(lines, "; ")
}
