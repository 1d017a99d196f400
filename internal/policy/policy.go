// Package policy loads the run policy that bounds worker execution:
// retries, timeouts, parallelism, and the worker command itself.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default bounds applied when .baton/policy.yaml is absent or partial.
const (
	DefaultMaxRetries   = 2
	DefaultMaxParallel  = 1
	DefaultPhaseTimeout = 30 * time.Minute
	DefaultStallTimeout = 5 * time.Minute
	DefaultGateTimeout  = 2 * time.Minute
)

// DefaultWorkerCommand is the argv used to launch a worker when the
// policy does not override it. The phase prompt is appended at launch.
var DefaultWorkerCommand = []string{
	"claude", "-p",
	"--output-format", "stream-json",
	"--verbose",
	"--dangerously-skip-permissions",
}

// Duration wraps time.Duration so yaml values like "30m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultLogLevel is the engine log verbosity when the policy is silent.
const DefaultLogLevel = "info"

// Policy bounds a run.
type Policy struct {
	MaxRetries    int
	MaxParallel   int
	PhaseTimeout  Duration
	StallTimeout  Duration
	GateTimeout   Duration
	LogLevel      string
	WorkerCommand []string
	Phases        map[string]PhaseOverride
}

// policyFile is the on-disk shape. Pointer fields distinguish an
// explicit zero from an absent key.
type policyFile struct {
	MaxRetries    *int                     `yaml:"max_retries"`
	MaxParallel   *int                     `yaml:"max_parallel"`
	PhaseTimeout  Duration                 `yaml:"phase_timeout"`
	StallTimeout  Duration                 `yaml:"stall_timeout"`
	GateTimeout   Duration                 `yaml:"gate_timeout"`
	LogLevel      string                   `yaml:"log_level"`
	WorkerCommand []string                 `yaml:"worker_command"`
	Phases        map[string]PhaseOverride `yaml:"phases"`
}

// PhaseOverride adjusts bounds for a single phase.
type PhaseOverride struct {
	MaxRetries   *int     `yaml:"max_retries"`
	PhaseTimeout Duration `yaml:"phase_timeout"`
}

// Default returns a fully populated policy with the default bounds.
func Default() *Policy {
	return &Policy{
		MaxRetries:    DefaultMaxRetries,
		MaxParallel:   DefaultMaxParallel,
		PhaseTimeout:  Duration(DefaultPhaseTimeout),
		StallTimeout:  Duration(DefaultStallTimeout),
		GateTimeout:   Duration(DefaultGateTimeout),
		LogLevel:      DefaultLogLevel,
		WorkerCommand: append([]string(nil), DefaultWorkerCommand...),
	}
}

// Load reads a policy file and fills unset fields with defaults. An
// explicit `max_retries: 0` disables retries; only absent keys fall
// back. Unknown keys are an error. A missing file yields the default
// policy without error.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	var f policyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	p := Default()
	if f.MaxRetries != nil {
		if *f.MaxRetries < 0 {
			return nil, fmt.Errorf("max_retries must not be negative, got %d", *f.MaxRetries)
		}
		p.MaxRetries = *f.MaxRetries
	}
	if f.MaxParallel != nil {
		if *f.MaxParallel < 1 {
			return nil, fmt.Errorf("max_parallel must be at least 1, got %d", *f.MaxParallel)
		}
		p.MaxParallel = *f.MaxParallel
	}
	if f.PhaseTimeout > 0 {
		p.PhaseTimeout = f.PhaseTimeout
	}
	if f.StallTimeout > 0 {
		p.StallTimeout = f.StallTimeout
	}
	if f.GateTimeout > 0 {
		p.GateTimeout = f.GateTimeout
	}
	if f.LogLevel != "" {
		p.LogLevel = f.LogLevel
	}
	if len(f.WorkerCommand) > 0 {
		p.WorkerCommand = f.WorkerCommand
	}
	p.Phases = f.Phases

	for id, o := range p.Phases {
		if o.MaxRetries != nil && *o.MaxRetries < 0 {
			return nil, fmt.Errorf("phases.%s.max_retries must not be negative, got %d", id, *o.MaxRetries)
		}
	}

	return p, nil
}

// RetriesFor returns the retry budget for a phase, honoring overrides.
func (p *Policy) RetriesFor(phaseID string) int {
	if o, ok := p.Phases[phaseID]; ok && o.MaxRetries != nil {
		return *o.MaxRetries
	}
	return p.MaxRetries
}

// TimeoutFor returns the session timeout for a phase, honoring overrides.
func (p *Policy) TimeoutFor(phaseID string) time.Duration {
	if o, ok := p.Phases[phaseID]; ok && o.PhaseTimeout > 0 {
		return o.PhaseTimeout.Std()
	}
	return p.PhaseTimeout.Std()
}

// MaxAttemptsFor returns the total attempt bound for a phase: the first
// attempt plus its retries.
func (p *Policy) MaxAttemptsFor(phaseID string) int {
	return p.RetriesFor(phaseID) + 1
}
