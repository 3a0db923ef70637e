// Package simulation runs the whole pipeline of one process: mesh and
// partition on the root, distribution, the evolve loop with halo exchange,
// partial output and, on the root, the merge.
package simulation

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/collective"
	"github.com/notargets/gohalo/distribute"
	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/evolve"
	"github.com/notargets/gohalo/halo"
	"github.com/notargets/gohalo/merge"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/model_problems/Advection2D"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/partition/metis"
	"github.com/notargets/gohalo/sww"
	"github.com/notargets/gohalo/transport"
	"github.com/notargets/gohalo/types"
	"github.com/notargets/gohalo/utils"
)

const (
	Stage     = "stage"
	Elevation = "elevation"
)

type Result struct {
	Domain      *domain.Domain
	Steps       int
	Yields      int
	Time        float64
	Diagnostics *collective.Diagnostics
	MergedPath  string // Root only, empty without output
}

func BuildMesh(rp *InputParameters.RunParameters) (m *mesh.Mesh, err error) {
	origin := [2]float64{rp.OriginX, rp.OriginY}
	switch rp.MeshType {
	case "rectangular_cross":
		m, err = mesh.RectangularCross(rp.Nx, rp.Ny, rp.Length, rp.Width, origin)
	case "rectangular":
		m, err = mesh.Rectangular(rp.Nx, rp.Ny, rp.Length, rp.Width, origin)
	case "su2":
		m, err = mesh.ReadSU2File(rp.MeshFile)
	default:
		err = fmt.Errorf("unknown mesh type %q", rp.MeshType)
	}
	if err != nil {
		return nil, types.ConfigErrorf("building mesh: %v", err)
	}
	SetInitialConditions(m, rp)
	return
}

// SetInitialConditions fills the stage and elevation of every triangle
func SetInitialConditions(m *mesh.Mesh, rp *InputParameters.RunParameters) {
	var (
		xmin, xmax = floats.Min(m.VX), floats.Max(m.VX)
		ymin, ymax = floats.Min(m.VY), floats.Max(m.VY)
		xc, yc     = 0.5 * (xmin + xmax), 0.5 * (ymin + ymax)
		r          = 0.1 * math.Max(xmax-xmin, ymax-ymin)
		a          = rp.InitialStage
	)
	m.SetConstant(Elevation, 0)
	switch rp.InitType {
	case "Constant":
		m.SetConstant(Stage, a)
	case "Step":
		m.SetQuantity(Stage, func(x, y float64) float64 {
			if x < xc {
				return a
			}
			return 0
		})
	default:
		m.SetQuantity(Stage, func(x, y float64) float64 {
			d2 := (x-xc)*(x-xc) + (y-yc)*(y-yc)
			return a * math.Exp(-d2/(r*r))
		})
	}
}

func Strategy(rp *InputParameters.RunParameters) partition.Assigner {
	switch rp.Strategy {
	case "block":
		return partition.Block{}
	case "metis":
		return metis.New(rp.ImbalanceTolerance)
	default:
		return partition.RCB{}
	}
}

func PartitionConfig(rp *InputParameters.RunParameters) *partition.Config {
	return &partition.Config{
		NumProcs:           rp.NumProcs,
		HaloWidth:          rp.HaloWidth,
		ImbalanceTolerance: rp.ImbalanceTolerance,
		Assigner:           Strategy(rp),
		Verbose:            true,
	}
}

// Boundaries maps tags to conditions. Without configured conditions every
// tag is transmissive.
func Boundaries(rp *InputParameters.RunParameters, d *domain.Domain) (bcs map[string]domain.BoundaryCondition, err error) {
	bcs = make(map[string]domain.BoundaryCondition)
	if len(rp.BCs) == 0 {
		for _, tag := range d.Tags {
			if tag != types.GhostTag {
				bcs[tag] = Advection2D.Transmissive{}
			}
		}
		return
	}
	for tag, p := range rp.BCs {
		switch p.Type {
		case "Transmissive":
			bcs[tag] = Advection2D.Transmissive{}
		case "Reflective":
			bcs[tag] = Advection2D.Reflective{}
		case "Dirichlet":
			bcs[tag] = Advection2D.Dirichlet{Value: p.Value}
		case "Oscillating":
			bcs[tag] = Advection2D.Oscillating(p.Value, p.Amplitude, p.Period)
		default:
			return nil, types.ConfigErrorf("boundary %s has unknown type %q", tag, p.Type)
		}
	}
	return
}

// CheckBoundaries fails when configured conditions leave a tag of m uncovered
func CheckBoundaries(rp *InputParameters.RunParameters, m *mesh.Mesh) error {
	if len(rp.BCs) == 0 {
		return nil
	}
	var missing []string
	for _, tag := range m.BoundaryTags() {
		if _, ok := rp.BCs[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	if len(missing) != 0 {
		return types.ConfigErrorf("no boundary condition for tags %s", strings.Join(missing, ", "))
	}
	return nil
}

// Prepare builds and checks the mesh, then partitions it
func Prepare(rp *InputParameters.RunParameters, verbose bool) (m *mesh.Mesh, pt *partition.Partition, err error) {
	if m, err = BuildMesh(rp); err != nil {
		return
	}
	if err = CheckBoundaries(rp, m); err != nil {
		return nil, nil, err
	}
	cfg := PartitionConfig(rp)
	cfg.Verbose = verbose
	if pt, err = partition.Build(m, cfg); err != nil {
		return nil, nil, err
	}
	return
}

// Run is called by every process of a run with the same parameters
func Run(ctx context.Context, pc *transport.ProcessContext, rp *InputParameters.RunParameters) (res *Result, err error) {
	sync := collective.New(pc)
	if err = rp.Validate(); err != nil {
		return nil, types.Locate(err, pc.Rank, types.NoStep)
	}
	if pc.Size != rp.NumProcs {
		return nil, types.Locate(types.ConfigErrorf("%d processes running, NumProcs is %d",
			pc.Size, rp.NumProcs), pc.Rank, types.NoStep)
	}
	var (
		dom  *domain.Domain
		dist = distribute.New(sync, rp.DistributeWait())
	)
	switch {
	case rp.ParallelMesh:
		dom, err = dist.Generate(ctx, func() (*mesh.Mesh, *partition.Partition, error) {
			return Prepare(rp, pc.IsRoot())
		})
	case pc.IsRoot():
		m, pt, perr := Prepare(rp, true)
		if perr != nil {
			return nil, dist.Abandon(ctx, perr)
		}
		dom, err = dist.Distribute(ctx, m, pt)
	default:
		dom, err = dist.Distribute(ctx, nil, nil)
	}
	if err != nil {
		return
	}
	pc.Log.Debug(dom.Statistics())
	var bcs map[string]domain.BoundaryCondition
	if bcs, err = Boundaries(rp, dom); err != nil {
		return nil, types.Locate(err, pc.Rank, types.NoStep)
	}
	if err = dom.SetBoundary(bcs); err != nil {
		return nil, types.Locate(err, pc.Rank, types.NoStep)
	}
	var x *halo.Exchanger
	if x, err = halo.New(sync, dom); err != nil {
		return
	}
	solver := Advection2D.NewAdvection2D(Stage, rp.Velocity[0], rp.Velocity[1], rp.CFL)
	var loop *evolve.Loop
	if loop, err = evolve.New(sync, x, dom, solver, evolve.Config{
		YieldStep: rp.YieldStep,
		FinalTime: rp.FinalTime,
		MaxSteps:  rp.MaxSteps,
		Verify:    rp.VerifyHalo,
	}); err != nil {
		return
	}
	var rec *sww.Recorder
	if rp.OutputDir != "" {
		if err = os.MkdirAll(rp.OutputDir, 0755); err != nil {
			return nil, types.Locate(types.ConfigErrorf("output directory: %v", err), pc.Rank, types.NoStep)
		}
		if rec, err = sww.NewRecorder(sww.PartialName(rp.OutputDir, rp.Name, pc.Rank, pc.Size), rp.Title, dom); err != nil {
			return nil, types.Locate(types.ConfigErrorf("%v", err), pc.Rank, types.NoStep)
		}
		loop.Recorder = rec
	}
	if err = loop.Run(ctx); err != nil {
		return
	}
	if rec != nil {
		if err = rec.Close(); err != nil {
			return nil, types.Locate(types.ConfigErrorf("%v", err), pc.Rank, loop.Steps)
		}
	}
	res = &Result{
		Domain: dom,
		Steps:  loop.Steps,
		Yields: loop.Yields,
		Time:   loop.Time,
	}
	// Every partial is closed once the gather completes
	if res.Diagnostics, err = sync.Gather(ctx, dom.NumOwned(), dom.NumHalo()); err != nil {
		return nil, types.Locate(err, pc.Rank, loop.Steps)
	}
	res.Diagnostics.Log(pc)
	if err = sync.Report(ctx); err != nil {
		return nil, types.Locate(err, pc.Rank, loop.Steps)
	}
	pc.Log.Debugf("Memory: %s", utils.GetMemUsage())
	if rec != nil && pc.IsRoot() {
		if res.MergedPath, err = merge.Run(merge.Options{
			Dir:            rp.OutputDir,
			Name:           rp.Name,
			NumProcs:       pc.Size,
			DeletePartials: rp.DeletePartials,
		}); err != nil {
			return nil, types.Locate(err, pc.Rank, loop.Steps)
		}
	}
	return
}

// RunGroup simulates every process of a run with the in-process transport,
// one goroutine per process. The first failure aborts the group so that no
// process is left blocked.
func RunGroup(ctx context.Context, rp *InputParameters.RunParameters, logger *log.Logger) (results []*Result, err error) {
	var g *transport.Group
	if g, err = transport.NewGroup(rp.NumProcs); err != nil {
		return
	}
	results = make([]*Result, rp.NumProcs)
	var eg errgroup.Group
	for r, ep := range g.Endpoints {
		r, ep := r, ep
		eg.Go(func() (err error) {
			defer ep.Close()
			pc := transport.NewProcessContext(ep, logger)
			if results[r], err = Run(ctx, pc, rp); err != nil {
				pc.Log.Error(err)
				g.Abort(err)
			}
			return
		})
	}
	if err = eg.Wait(); err != nil {
		return nil, err
	}
	return
}
