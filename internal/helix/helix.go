// Package helix models the trajectory of a charged particle in a uniform
// solenoidal field along z.
//
// The helix is parameterised by transverse path length s measured from the
// reference point. Positive s follows the momentum direction.
package helix

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CurvatureConstant converts transverse momentum and field to curvature:
// radius [mm] = pT [GeV] / (CurvatureConstant * B [T]).
const CurvatureConstant = 0.299792458e-3

// straightLineOmega is the curvature below which the helix is treated as a line.
const straightLineOmega = 1e-12

var (
	// ErrZeroTransverseMomentum is returned when the momentum has no
	// transverse component, so no helix can be defined.
	ErrZeroTransverseMomentum = errors.New("helix: zero transverse momentum")
	// ErrNoLongitudinalMotion is returned by z-based queries on a helix that
	// never leaves its starting z.
	ErrNoLongitudinalMotion = errors.New("helix: no longitudinal motion")
)

// Helix is an immutable helical trajectory.
type Helix struct {
	reference r3.Vec
	momentum  r3.Vec
	bField    float64

	pt        float64
	ux, uy    float64 // unit transverse direction at the reference point
	tanLambda float64
	omega     float64 // signed curvature (1/mm), positive is counter-clockwise
}

// New fits a helix through position with the given momentum, charge sign and
// field strength along z.
func New(position, momentum r3.Vec, charge int, bField float64) (*Helix, error) {
	pt := math.Hypot(momentum.X, momentum.Y)
	if pt == 0 || math.IsNaN(pt) {
		return nil, ErrZeroTransverseMomentum
	}
	if charge != 0 && charge != 1 && charge != -1 {
		return nil, fmt.Errorf("helix: invalid charge sign %d", charge)
	}

	return &Helix{
		reference: position,
		momentum:  momentum,
		bField:    bField,
		pt:        pt,
		ux:        momentum.X / pt,
		uy:        momentum.Y / pt,
		tanLambda: momentum.Z / pt,
		omega:     -float64(charge) * CurvatureConstant * bField / pt,
	}, nil
}

// ReferencePoint returns the point the helix was fitted through.
func (h *Helix) ReferencePoint() r3.Vec { return h.reference }

// TanLambda returns the dip angle tangent, pz/pT.
func (h *Helix) TanLambda() float64 { return h.tanLambda }

// Radius returns the transverse radius of curvature, +Inf for a straight line.
func (h *Helix) Radius() float64 {
	if h.isStraight() {
		return math.Inf(1)
	}
	return 1 / math.Abs(h.omega)
}

func (h *Helix) isStraight() bool {
	return math.Abs(h.omega) < straightLineOmega
}

// PointAt returns the position after transverse path length s.
func (h *Helix) PointAt(s float64) r3.Vec {
	z := h.reference.Z + s*h.tanLambda
	if h.isStraight() {
		return r3.Vec{X: h.reference.X + h.ux*s, Y: h.reference.Y + h.uy*s, Z: z}
	}

	theta := h.omega * s
	sin, cos := math.Sincos(theta)
	return r3.Vec{
		X: h.reference.X + (h.ux*sin-h.uy*(1-cos))/h.omega,
		Y: h.reference.Y + (h.uy*sin+h.ux*(1-cos))/h.omega,
		Z: z,
	}
}

// PointInZ returns the position where the helix reaches z.
func (h *Helix) PointInZ(z float64) (r3.Vec, error) {
	if h.tanLambda == 0 {
		return r3.Vec{}, ErrNoLongitudinalMotion
	}
	return h.PointAt((z - h.reference.Z) / h.tanLambda), nil
}

// DistanceToPoint returns the 3D distance from p to the nearest point of the
// helix turn closest to p in z.
func (h *Helix) DistanceToPoint(p r3.Vec) float64 {
	if h.isStraight() {
		dir := r3.Unit(h.momentum)
		return r3.Norm(r3.Cross(dir, r3.Sub(p, h.reference)))
	}

	// Circle centre sits on the inside of the turn.
	cx := h.reference.X - h.uy/h.omega
	cy := h.reference.Y + h.ux/h.omega
	wx, wy := h.omega*(p.X-cx), h.omega*(p.Y-cy)

	theta0 := 0.0
	if norm := math.Hypot(wx, wy); norm > 0 {
		sin := (h.ux*wx + h.uy*wy) / norm
		cos := (h.uy*wx - h.ux*wy) / norm
		theta0 = math.Atan2(sin, cos)
	}

	k := 0.0
	if h.tanLambda != 0 {
		target := h.omega * (p.Z - h.reference.Z) / h.tanLambda
		k = math.Round((target - theta0) / (2 * math.Pi))
	}

	best := math.Inf(1)
	for _, dk := range []float64{-1, 0, 1} {
		s := (theta0 + 2*math.Pi*(k+dk)) / h.omega
		if d := r3.Norm(r3.Sub(h.PointAt(s), p)); d < best {
			best = d
		}
	}
	return best
}
