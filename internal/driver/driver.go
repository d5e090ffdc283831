// Package driver runs one generation: resolve the schema once, emit every
// requested target concurrently, and write each finished tree atomically.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/emitter/goemitter"
	"github.com/fenlang/fen/internal/emitter/npmemitter"
	"github.com/fenlang/fen/internal/emitter/openapiemitter"
	"github.com/fenlang/fen/internal/emitter/pyemitter"
	"github.com/fenlang/fen/internal/emitter/rustemitter"
	"github.com/fenlang/fen/internal/emitter/swiftemitter"
	"github.com/fenlang/fen/internal/logger"
	"github.com/fenlang/fen/internal/output"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
	"github.com/fenlang/fen/internal/version"
)

// State is the progress of a run or of one target within it.
type State string

const (
	StateLoaded   State = "loaded"
	StateResolved State = "resolved"
	StateEmitting State = "emitting"
	StatePlanned  State = "planned" // emitted in a dry run; nothing written
	StateWritten  State = "written"
	StateFailed   State = "failed"
)

// ErrUnknownTarget is wrapped by errors for target names the registry
// does not know.
var ErrUnknownTarget = errors.New("unknown target")

// TargetSpec asks for one target to be written to OutDir.
type TargetSpec struct {
	Target  string
	OutDir  string
	Options emitter.Options
}

type Request struct {
	Document *schema.Document
	Targets  []TargetSpec
	DryRun   bool
	Force    bool
	// Now stamps the file headers; the current time when zero.
	Now time.Time
}

type TargetReport struct {
	Target string
	OutDir string
	State  State
	Files  []output.PlannedFile
	Err    error
}

// Report describes a finished run. Targets are in request order.
type Report struct {
	State   State
	Schema  *resolver.ResolvedSchema
	Targets []TargetReport
}

// DefaultRegistry holds every built-in target: four clients, the OpenAPI
// description and the Rust server types. "npm" is an alias of the
// TypeScript target.
func DefaultRegistry() *emitter.Registry {
	r := emitter.NewRegistry(
		swiftemitter.New(),
		npmemitter.New(),
		goemitter.New(),
		pyemitter.New(),
		openapiemitter.New(),
		rustemitter.New(),
	)
	r.Alias("npm", npmemitter.TargetName)
	return r
}

type Driver struct {
	registry *emitter.Registry
	log      *slog.Logger
}

// New returns a driver over registry. A nil registry means
// DefaultRegistry and a nil logger discards.
func New(registry *emitter.Registry, log *slog.Logger) *Driver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Driver{registry: registry, log: log}
}

type job struct {
	spec   TargetSpec
	target emitter.Target
}

// Run performs the request. Emission starts only after the schema
// resolved; a failing target is reported and leaves the other targets and
// its own previous output untouched. The returned error joins every
// failure.
func (d *Driver) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Document == nil {
		return nil, errors.New("driver: no schema document")
	}
	jobs, err := d.plan(req.Targets)
	if err != nil {
		return nil, err
	}
	report := &Report{State: StateLoaded, Targets: make([]TargetReport, len(jobs))}
	d.log.Info("schema loaded", "state", StateLoaded, "types", len(req.Document.Types), "endpoints", len(req.Document.Endpoints))

	rs, err := resolver.Resolve(req.Document)
	if err != nil {
		report.State = StateFailed
		for i, j := range jobs {
			report.Targets[i] = TargetReport{Target: j.target.Name(), OutDir: j.spec.OutDir, State: StateFailed, Err: err}
		}
		d.log.Warn("schema rejected", "state", StateFailed, "error", err)
		return report, err
	}
	report.State = StateResolved
	report.Schema = rs
	d.log.Info("schema resolved", "state", StateResolved)

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	var g errgroup.Group
	for i, j := range jobs {
		g.Go(func() error {
			report.Targets[i] = d.runTarget(ctx, rs, j, req, now)
			return report.Targets[i].Err
		})
	}
	_ = g.Wait()

	var errs []error
	for _, tr := range report.Targets {
		if tr.Err != nil {
			errs = append(errs, fmt.Errorf("%s -> %s: %w", tr.Target, tr.OutDir, tr.Err))
		}
	}
	switch {
	case len(errs) > 0:
		report.State = StateFailed
	case req.DryRun:
		report.State = StatePlanned
	default:
		report.State = StateWritten
	}
	return report, errors.Join(errs...)
}

// plan resolves target names and rejects two targets sharing a directory.
func (d *Driver) plan(specs []TargetSpec) ([]job, error) {
	if len(specs) == 0 {
		return nil, errors.New("driver: no targets requested")
	}
	dirs := map[string]string{}
	jobs := make([]job, 0, len(specs))
	for _, spec := range specs {
		t, ok := d.registry.Lookup(spec.Target)
		if !ok {
			return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownTarget, spec.Target, d.registry.Names())
		}
		abs, err := filepath.Abs(spec.OutDir)
		if err != nil {
			return nil, fmt.Errorf("driver: output directory %q: %w", spec.OutDir, err)
		}
		if prev, dup := dirs[abs]; dup {
			return nil, fmt.Errorf("driver: targets %s and %s both write to %s", prev, t.Name(), abs)
		}
		dirs[abs] = t.Name()
		jobs = append(jobs, job{spec: spec, target: t})
	}
	return jobs, nil
}

func (d *Driver) runTarget(ctx context.Context, rs *resolver.ResolvedSchema, j job, req Request, now time.Time) TargetReport {
	name := j.target.Name()
	tr := TargetReport{Target: name, OutDir: j.spec.OutDir, State: StateEmitting}
	log := d.log.With("target", name)
	log.Info("emitting", "state", StateEmitting, "out", j.spec.OutDir)

	opts := j.spec.Options
	if opts.Stamp.Generator == "" {
		opts.Stamp = emitter.Stamp{Generator: version.Name, Version: version.Version, Time: now}
	}
	tree, err := j.target.Emit(ctx, rs, opts)
	if err != nil {
		tr.State, tr.Err = StateFailed, err
		log.Warn("target failed", "state", StateFailed, "error", err)
		return tr
	}
	if req.DryRun {
		tr.State, tr.Files = StatePlanned, output.Plan(tree)
		log.Info("planned", "state", StatePlanned, "files", len(tr.Files))
		return tr
	}
	files, err := output.WriteTree(j.spec.OutDir, tree, output.WriteOptions{Force: req.Force})
	if err != nil {
		tr.State, tr.Err = StateFailed, err
		log.Warn("write failed", "state", StateFailed, "error", err)
		return tr
	}
	tr.State, tr.Files = StateWritten, files
	log.Info("written", "state", StateWritten, "files", len(files))
	return tr
}
