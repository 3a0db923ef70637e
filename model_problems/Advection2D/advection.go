package Advection2D

import (
	"fmt"
	"math"

	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/types"
)

// Advection2D is first order upwind finite volume advection of one quantity
// by a constant velocity, on triangle centroids
type Advection2D struct {
	Quantity string
	U, V     float64
	CFL      float64
	buf      []float64
}

func NewAdvection2D(quantity string, u, v, cfl float64) *Advection2D {
	return &Advection2D{
		Quantity: quantity,
		U:        u,
		V:        v,
		CFL:      cfl,
	}
}

// Timestep limits the outflow through each owned triangle to CFL times its
// content
func (c *Advection2D) Timestep(d *domain.Domain) float64 {
	dt := math.Inf(1)
	for i := 0; i < d.NumOwned(); i++ {
		var out float64
		for e := 0; e < 3; e++ {
			nx, ny, length := d.EdgeNormal(i, e)
			if un := c.U*nx + c.V*ny; un > 0 {
				out += un * length
			}
		}
		if out > 0 {
			dt = math.Min(dt, c.CFL*d.Area(i)/out)
		}
	}
	return dt
}

func (c *Advection2D) Step(d *domain.Domain, t, dt float64) (err error) {
	if err = d.RequireSynchronized(); err != nil {
		return
	}
	q, ok := d.Quantities[c.Quantity]
	if !ok {
		return types.ConfigErrorf("no quantity %s to advect", c.Quantity)
	}
	nOwned := d.NumOwned()
	if cap(c.buf) < nOwned {
		c.buf = make([]float64, nOwned)
	}
	qNew := c.buf[:nOwned]
	for i := 0; i < nOwned; i++ {
		var flux float64
		for e := 0; e < 3; e++ {
			nx, ny, length := d.EdgeNormal(i, e)
			un := c.U*nx + c.V*ny
			var qe float64
			switch n := d.Neighbors[i][e]; n {
			case types.NeighborBoundary:
				bc, ok := d.Boundary(i, e)
				if !ok {
					return types.ConfigErrorf("no boundary condition on edge %d of triangle %d",
						e, d.Index.GlobalID(i))
				}
				if _, wall := bc.(Reflective); wall {
					continue
				}
				x, y := d.EdgeMidpoint(i, e)
				qe = bc.ExteriorValue(c.Quantity, q[i], x, y, t)
			case types.NeighborOutside:
				panic(fmt.Errorf("owned triangle %d has no neighbor on edge %d", d.Index.GlobalID(i), e))
			default:
				qe = q[n]
			}
			if un > 0 {
				flux += un * length * q[i]
			} else {
				flux += un * length * qe
			}
		}
		qNew[i] = q[i] - dt*flux/d.Area(i)
	}
	copy(d.Owned(c.Quantity), qNew)
	return
}

// Transmissive passes the interior value through the boundary
type Transmissive struct{}

func (Transmissive) ExteriorValue(quantity string, interior, x, y, t float64) float64 {
	return interior
}

// Dirichlet fixes the exterior value
type Dirichlet struct {
	Value float64
}

func (b Dirichlet) ExteriorValue(quantity string, interior, x, y, t float64) float64 {
	return b.Value
}

// Reflective is a wall, nothing crosses the edge
type Reflective struct{}

func (Reflective) ExteriorValue(quantity string, interior, x, y, t float64) float64 {
	return interior
}

// Oscillating varies the exterior value sinusoidally in time
func Oscillating(mean, amplitude, period float64) TimeFunction {
	return func(x, y, t float64) float64 {
		return mean + amplitude*math.Sin(2*math.Pi*t/period)
	}
}

// TimeFunction sets the exterior value from position and time
type TimeFunction func(x, y, t float64) float64

func (f TimeFunction) ExteriorValue(quantity string, interior, x, y, t float64) float64 {
	return f(x, y, t)
}
