// Package migration upgrades an on-disk chat document to the running
// program's schema version.
package migration

import (
	"errors"
	"fmt"
	"math"

	"flexchat/internal/metrics"
	"flexchat/pkg/logger"
	"flexchat/pkg/version"
	"flexchat/store"

	"go.uber.org/zap"
)

// ErrStaleBinary means the program version is older than its own newest
// migration step.
var ErrStaleBinary = errors.New("migration: app version is older than the newest migration step")

// legacyVersionCode is assumed for documents written before version-code
// existed.
var legacyVersionCode = version.Encode(version.MustParse("0.1.0"), 0)

// Step rewrites the document at a path in place and leaves it parseable at
// Target.
type Step struct {
	Target uint64
	Name   string
	Apply  func(path string) error
}

type Runner struct {
	current uint64
	steps   []Step
}

// NewRunner returns a runner for a program at current. steps must be sorted
// ascending by Target.
func NewRunner(current uint64, steps []Step) (*Runner, error) {
	for i := 1; i < len(steps); i++ {
		if steps[i].Target <= steps[i-1].Target {
			return nil, fmt.Errorf("migration: step %q is not after %q", steps[i].Name, steps[i-1].Name)
		}
	}
	return &Runner{current: current, steps: steps}, nil
}

// Default returns the runner for the running program with every known step.
func Default() (*Runner, error) {
	current, err := version.Current()
	if err != nil {
		return nil, err
	}
	return NewRunner(current, Steps())
}

// Steps is the ordered migration table.
func Steps() []Step {
	return []Step{
		{Target: v030, Name: "0.3.0", Apply: migrate030},
	}
}

// Run migrates the document at path. It returns the number of steps applied.
func (r *Runner) Run(path string) (int, error) {
	logger.Log.Info("app version", zap.String("version", version.Describe(r.current)))

	stored, err := store.ReadVersionCode(path)
	// Only a missing key means legacy; a malformed one fails with ErrParse.
	if errors.Is(err, store.ErrSchema) {
		stored = legacyVersionCode
	} else if err != nil {
		return 0, err
	}
	logger.Log.Info("database version", zap.String("version", version.Describe(stored)))

	if stored > r.current {
		return 0, fmt.Errorf("%w: database %s, app %s", store.ErrSchemaVersion, version.Describe(stored), version.Describe(r.current))
	}
	if stored == r.current {
		logger.Log.Info("database is up to date")
		return 0, nil
	}
	if n := len(r.steps); n > 0 && r.current < r.steps[n-1].Target {
		return 0, fmt.Errorf("%w: app %s, step %s", ErrStaleBinary, version.Describe(r.current), r.steps[n-1].Name)
	}

	applied := 0
	for _, step := range r.steps {
		if step.Target <= stored {
			continue
		}
		logger.Log.Info("migrate", zap.String("step", step.Name))
		if err := step.Apply(path); err != nil {
			return applied, fmt.Errorf("migrate to %s: %w", step.Name, err)
		}
		metrics.Migrations.WithLabelValues(step.Name).Inc()
		applied++
		logger.Log.Info("succeeded to migrate", zap.String("step", step.Name))
	}

	if err := stamp(path, r.current); err != nil {
		return applied, err
	}
	return applied, nil
}

func stamp(path string, code uint64) error {
	raw, err := store.ReadRaw(path)
	if err != nil {
		return err
	}
	if code > math.MaxInt64 {
		return fmt.Errorf("%w: version-code %s does not fit a TOML integer", store.ErrSerialize, version.Describe(code))
	}
	raw["version-code"] = int64(code)
	if err := store.WriteRaw(path, raw); err != nil {
		return err
	}
	logger.Log.Info("set database version-code", zap.String("version", version.Describe(code)))
	return nil
}
