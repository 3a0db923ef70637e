// Package evolve drives the SPMD time loop of one process. Every process
// runs the same loop on its own domain; the collectives inside keep the
// loops in lockstep.
package evolve

import (
	"context"
	"errors"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/gohalo/collective"
	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/halo"
	"github.com/notargets/gohalo/types"
	"github.com/notargets/gohalo/utils"
)

// Solver is the numerical scheme. It writes owned values and reads, never
// writes, halo values.
type Solver interface {
	// Timestep returns the largest stable step of the owned triangles,
	// +Inf when the scheme has no limit
	Timestep(d *domain.Domain) float64
	Step(d *domain.Domain, t, dt float64) error
}

// Recorder stores the state of a domain at a yield time
type Recorder interface {
	Record(t float64, d *domain.Domain) error
}

type Config struct {
	YieldStep float64 // Time between yields, FinalTime when zero
	FinalTime float64
	MaxSteps  int  // No limit when zero
	Verify    bool // Re-exchange and compare the halo at every yield
}

func (c Config) Validate() error {
	switch {
	case !(c.FinalTime > 0) || math.IsInf(c.FinalTime, 0):
		return types.ConfigErrorf("final time must be positive and finite, have %v", c.FinalTime)
	case c.YieldStep < 0 || math.IsNaN(c.YieldStep):
		return types.ConfigErrorf("yield step must not be negative, have %v", c.YieldStep)
	case c.MaxSteps < 0:
		return types.ConfigErrorf("max steps must not be negative, have %d", c.MaxSteps)
	}
	return nil
}

type Loop struct {
	sync   *collective.Synchronizer
	x      *halo.Exchanger
	dom    *domain.Domain
	solver Solver
	cfg    Config

	Recorder Recorder
	OnYield  func(t float64, step int)

	Time   float64
	Steps  int
	Yields int
}

func New(sync *collective.Synchronizer, x *halo.Exchanger, dom *domain.Domain, solver Solver,
	cfg Config) (l *Loop, err error) {
	if err = cfg.Validate(); err != nil {
		return nil, types.Locate(err, sync.Context().Rank, types.NoStep)
	}
	if cfg.YieldStep == 0 {
		cfg.YieldStep = cfg.FinalTime
	}
	l = &Loop{
		sync:   sync,
		x:      x,
		dom:    dom,
		solver: solver,
		cfg:    cfg,
	}
	return
}

// Run evolves until the final time or the step limit. A failure on any
// process is returned with its rank and step; the other processes are left
// blocked in their next collective.
func (l *Loop) Run(ctx context.Context) (err error) {
	var (
		pc        = l.sync.Context()
		nextYield = math.Min(l.cfg.YieldStep, l.cfg.FinalTime)
		yielded   bool
	)
	defer func() {
		err = types.Locate(err, pc.Rank, l.Steps)
	}()
	if err = l.x.Synchronize(ctx); err != nil {
		return
	}
	if err = l.yield(ctx); err != nil {
		return
	}
	for !l.done() {
		if err = l.dom.RequireSynchronized(); err != nil {
			return
		}
		local := l.solver.Timestep(l.dom)
		if math.IsNaN(local) || local <= 0 {
			return types.ConsistencyErrorf("solver timestep %v", local)
		}
		var dt float64
		if dt, err = l.sync.GlobalMin(ctx, local); err != nil {
			return
		}
		yielded = false
		if l.Time+dt >= nextYield-timeEps(nextYield) {
			dt = nextYield - l.Time
			yielded = true
		}
		if err = l.solver.Step(l.dom, l.Time, dt); err != nil {
			var re *types.RunError
			if !errors.As(err, &re) {
				err = types.ConsistencyErrorf("solver step: %v", err)
			}
			return
		}
		for _, name := range l.dom.QuantityNames {
			if utils.IsNan(l.dom.Owned(name)) {
				return types.ConsistencyErrorf("solver step left NaN in %s", name)
			}
		}
		l.dom.Commit()
		l.Steps++
		if yielded {
			l.Time = nextYield
		} else {
			l.Time += dt
		}
		if err = l.x.Synchronize(ctx); err != nil {
			return
		}
		pc.Log.WithFields(log.Fields{"step": l.Steps, "time": l.Time}).Debugf("dt = %g", dt)
		if yielded {
			if err = l.yield(ctx); err != nil {
				return
			}
			nextYield = math.Min(nextYield+l.cfg.YieldStep, l.cfg.FinalTime)
		}
	}
	// A step limit leaves the last state unrecorded
	if !yielded && l.Steps > 0 {
		if err = l.yield(ctx); err != nil {
			return
		}
	}
	// Collective teardown
	return l.sync.Barrier(ctx)
}

func (l *Loop) done() bool {
	if l.cfg.MaxSteps > 0 && l.Steps >= l.cfg.MaxSteps {
		return true
	}
	return l.Time >= l.cfg.FinalTime-timeEps(l.cfg.FinalTime)
}

func (l *Loop) yield(ctx context.Context) (err error) {
	pc := l.sync.Context()
	if err = l.sync.Barrier(ctx); err != nil {
		return
	}
	var rootTime float64
	if rootTime, err = l.sync.BroadcastFloat(ctx, pc.Root, l.Time); err != nil {
		return
	}
	if rootTime != l.Time {
		return types.ConsistencyErrorf("yield at time %v, root process is at %v", l.Time, rootTime)
	}
	if l.cfg.Verify {
		if err = l.x.Verify(ctx); err != nil {
			return
		}
	}
	if l.Recorder != nil {
		if err = l.Recorder.Record(l.Time, l.dom); err != nil {
			return
		}
	}
	l.Yields++
	if pc.IsRoot() {
		pc.Log.WithFields(log.Fields{"step": l.Steps, "time": l.Time}).Infof("Yield %d", l.Yields)
	}
	if l.OnYield != nil {
		l.OnYield(l.Time, l.Steps)
	}
	return
}

func timeEps(t float64) float64 {
	return 1.e-12 * math.Max(1, math.Abs(t))
}
