// Package triangulate implements Triangulator, deriving device positions
// and inferred walls from RSSI samples against known node positions.
package triangulate

import (
	"math"
	"sort"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// Config holds the tunable path-loss parameters as one setting per
// deployment rather than hard-coded constants, since reference RSSI and
// path-loss exponent both vary with antenna placement and building
// material.
type Config struct {
	ReferenceRSSI    float64 // P0, dBm at 1m, default -40
	PathLossExponent float64 // n, default 3.5
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{ReferenceRSSI: -40, PathLossExponent: 3.5}
}

// Bounds is the house's floor-plane bounding box, used to break
// intersection ambiguity.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Triangulator derives DevicePositions and Walls from SignalSamples.
type Triangulator struct {
	cfg    Config
	bounds Bounds
}

// New builds a Triangulator with cfg and the house's floor-plane bounds.
func New(cfg Config, bounds Bounds) *Triangulator {
	return &Triangulator{cfg: cfg, bounds: bounds}
}

type reading struct {
	node     model.NodePosition
	rssi     int
	distance float64
}

// distanceFromRSSI applies the log-distance path-loss model, clamping RSSI
// to [-100, -20] and the resulting distance to >= 0.5m
func (c Config) distanceFromRSSI(rssi int) float64 {
	clamped := float64(rssi)
	if clamped < -100 {
		clamped = -100
	}
	if clamped > -20 {
		clamped = -20
	}
	d := math.Pow(10, (c.ReferenceRSSI-clamped)/(10*c.PathLossExponent))
	if d < 0.5 {
		d = 0.5
	}
	return d
}

// Locate derives a DevicePosition for deviceAddr from its last-per-node
// samples and the corresponding node positions. It returns
// InsufficientDataError if no usable reading exists, or if two or more
// readings are all identical (no geometric information to exploit).
func (t *Triangulator) Locate(deviceAddr string, samples map[string]model.SignalSample, nodes map[string]model.NodePosition) (model.DevicePosition, error) {
	var readings []reading
	for nodeAddr, sample := range samples {
		pos, ok := nodes[nodeAddr]
		if !ok {
			continue
		}
		readings = append(readings, reading{
			node:     pos,
			rssi:     sample.RSSI,
			distance: t.cfg.distanceFromRSSI(sample.RSSI),
		})
	}

	if len(readings) == 0 {
		return model.DevicePosition{}, neterrors.New(neterrors.KindInsufficientData, "no readings with known node positions for "+deviceAddr)
	}
	if len(readings) > 1 && allIdentical(readings) {
		return model.DevicePosition{}, neterrors.New(neterrors.KindInsufficientData, "all readings identical, no geometric information")
	}

	sort.Slice(readings, func(i, j int) bool { return readings[i].node.NodeID < readings[j].node.NodeID })

	switch {
	case len(readings) >= 3 && !collinear(readings):
		return t.trilaterate(deviceAddr, readings), nil
	case len(readings) >= 2:
		return t.bilaterate(deviceAddr, readings[:2]), nil
	default:
		return t.singleNode(deviceAddr, readings[0]), nil
	}
}

func allIdentical(readings []reading) bool {
	for _, r := range readings[1:] {
		if r.rssi != readings[0].rssi || r.distance != readings[0].distance {
			return false
		}
	}
	return true
}

func collinear(readings []reading) bool {
	if len(readings) < 3 {
		return false
	}
	x0, y0 := readings[0].node.X, readings[0].node.Y
	x1, y1 := readings[1].node.X, readings[1].node.Y
	for _, r := range readings[2:] {
		cross := (x1-x0)*(r.node.Y-y0) - (y1-y0)*(r.node.X-x0)
		if math.Abs(cross) > 1e-6 {
			return false
		}
	}
	return true
}

// trilaterate solves the overdetermined sphere-intersection system by
// linearising around the first node (subtracting its sphere equation from
// the rest) and least-squares solving the resulting linear system,
// projecting to the floor plane.
func (t *Triangulator) trilaterate(deviceAddr string, readings []reading) model.DevicePosition {
	x0, y0, d0 := readings[0].node.X, readings[0].node.Y, readings[0].distance

	// Build A*[x,y]^T = b for i = 1..N-1, from:
	// (x-xi)^2+(y-yi)^2 = di^2  and  (x-x0)^2+(y-y0)^2 = d0^2
	// subtracting: 2(xi-x0)x + 2(yi-y0)y = (di^2-d0^2) - (xi^2-x0^2) - (yi^2-y0^2) ... rearranged below.
	var a11, a12, a21, a22, b1, b2 float64
	n := len(readings) - 1
	for _, r := range readings[1:] {
		xi, yi, di := r.node.X, r.node.Y, r.distance
		ai1 := 2 * (xi - x0)
		ai2 := 2 * (yi - y0)
		bi := (d0*d0 - di*di) + (xi*xi - x0*x0) + (yi*yi - y0*y0)

		a11 += ai1 * ai1
		a12 += ai1 * ai2
		a21 += ai2 * ai1
		a22 += ai2 * ai2
		b1 += ai1 * bi
		b2 += ai2 * bi
	}
	_ = n

	det := a11*a22 - a12*a21
	var x, y float64
	if math.Abs(det) < 1e-9 {
		// Degenerate normal equations (near-collinear after all); fall back
		// to a centroid estimate rather than dividing by ~zero.
		for _, r := range readings {
			x += r.node.X
			y += r.node.Y
		}
		x /= float64(len(readings))
		y /= float64(len(readings))
	} else {
		x = (b1*a22 - a12*b2) / det
		y = (a11*b2 - b1*a21) / det
	}

	residual := residualNorm(readings, x, y)
	confidence := confidenceFromResidual(residual, 0.6, 1.0)

	return model.DevicePosition{
		DeviceAddr:   deviceAddr,
		X:            x,
		Y:            y,
		Floor:        readings[0].node.Floor,
		Confidence:   confidence,
		Method:       model.MethodTrilateration,
		Contributing: len(readings),
	}
}

// bilaterate returns the midpoint of the two spheres' intersection on the
// floor plane; when the spheres don't intersect (distance estimates
// inconsistent with geometry), the midpoint of the line between the nodes
// weighted by each distance is used instead.
func (t *Triangulator) bilaterate(deviceAddr string, readings []reading) model.DevicePosition {
	p1, p2 := readings[0], readings[1]
	x1, y1, d1 := p1.node.X, p1.node.Y, p1.distance
	x2, y2, d2 := p2.node.X, p2.node.Y, p2.distance

	dx, dy := x2-x1, y2-y1
	dist := math.Hypot(dx, dy)

	var mx, my float64
	if dist < 1e-9 || dist > d1+d2 || dist < math.Abs(d1-d2) {
		// No real intersection; interpolate along the baseline weighted by
		// relative distance estimates.
		total := d1 + d2
		if total < 1e-9 {
			mx, my = x1, y1
		} else {
			frac := d1 / total
			mx = x1 + dx*frac
			my = y1 + dy*frac
		}
	} else {
		a := (d1*d1 - d2*d2 + dist*dist) / (2 * dist)
		h := math.Sqrt(math.Max(0, d1*d1-a*a))
		ex, ey := dx/dist, dy/dist
		px, py := x1+a*ex, y1+a*ey

		// The two intersection candidates, offset perpendicular to the baseline.
		c1x, c1y := px+h*(-ey), py+h*ex
		c2x, c2y := px-h*(-ey), py-h*ex

		mx, my = t.pickAmbiguous(c1x, c1y, c2x, c2y, readings)
	}

	residual := residualNorm(readings, mx, my)
	confidence := math.Min(0.5, confidenceFromResidual(residual, 0.1, 0.5))

	return model.DevicePosition{
		DeviceAddr:   deviceAddr,
		X:            mx,
		Y:            my,
		Floor:        p1.node.Floor,
		Confidence:   confidence,
		Method:       model.MethodBilateration,
		Contributing: len(readings),
	}
}

// pickAmbiguous breaks a two-sphere intersection tie: prefer the candidate
// inside the house bounding box; if both are inside, prefer the smaller
// mean residual.
func (t *Triangulator) pickAmbiguous(x1, y1, x2, y2 float64, readings []reading) (float64, float64) {
	in1 := t.bounds.contains(x1, y1)
	in2 := t.bounds.contains(x2, y2)

	switch {
	case in1 && !in2:
		return x1, y1
	case in2 && !in1:
		return x2, y2
	default:
		if residualNorm(readings, x1, y1) <= residualNorm(readings, x2, y2) {
			return x1, y1
		}
		return x2, y2
	}
}

// singleNode offsets the lone node position by its estimated distance along
// +X, an arbitrary but deterministic direction since a single reading
// carries no bearing information.
func (t *Triangulator) singleNode(deviceAddr string, r reading) model.DevicePosition {
	return model.DevicePosition{
		DeviceAddr:   deviceAddr,
		X:            r.node.X + r.distance,
		Y:            r.node.Y,
		Floor:        r.node.Floor,
		Confidence:   math.Min(0.25, confidenceFromResidual(0, 0.05, 0.25)),
		Method:       model.MethodSingle,
		Contributing: 1,
	}
}

func residualNorm(readings []reading, x, y float64) float64 {
	var sumSq float64
	for _, r := range readings {
		predicted := math.Hypot(r.node.X-x, r.node.Y-y)
		diff := predicted - r.distance
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(readings)))
}

// confidenceFromResidual maps a residual norm to a confidence score within
// [lo, hi], decaying as the residual grows; a residual of 0 maps to hi.
func confidenceFromResidual(residual, lo, hi float64) float64 {
	decay := math.Exp(-residual / 5.0)
	c := lo + (hi-lo)*decay
	if c < lo {
		c = lo
	}
	if c > hi {
		c = hi
	}
	return c
}

const wallClusterToleranceMeters = 2.0

// DetectWalls attributes attenuation anomalies to walls. For each reading
// whose actual RSSI implies significantly more path loss than its
// straight-line distance from the device position predicts (>= 5dB below
// expected), it records an attenuation delta at the reading's midpoint to
// the device, then clusters those deltas by midpoint proximity and
// classifies the cluster's material by mean delta magnitude.
func (t *Triangulator) DetectWalls(device model.DevicePosition, samples map[string]model.SignalSample, nodes map[string]model.NodePosition) []model.Wall {
	type delta struct {
		midX, midY float64
		deltaDB    float64
	}
	var deltas []delta

	for nodeAddr, sample := range samples {
		pos, ok := nodes[nodeAddr]
		if !ok {
			continue
		}
		straightLine := math.Hypot(pos.X-device.X, pos.Y-device.Y)
		if straightLine < 0.5 {
			straightLine = 0.5
		}
		expectedRSSI := t.cfg.ReferenceRSSI - 10*t.cfg.PathLossExponent*math.Log10(straightLine)
		actual := float64(sample.RSSI)
		attenuation := expectedRSSI - actual // positive means weaker than expected
		if attenuation >= 5 {
			deltas = append(deltas, delta{
				midX:    (pos.X + device.X) / 2,
				midY:    (pos.Y + device.Y) / 2,
				deltaDB: attenuation,
			})
		}
	}

	if len(deltas) == 0 {
		return nil
	}

	type cluster struct {
		midX, midY float64
		sumDelta   float64
		count      int
	}
	var clusters []cluster

	for _, d := range deltas {
		placed := false
		for i := range clusters {
			if math.Hypot(clusters[i].midX-d.midX, clusters[i].midY-d.midY) <= wallClusterToleranceMeters {
				// Running mean midpoint, weighted by count so far.
				n := float64(clusters[i].count)
				clusters[i].midX = (clusters[i].midX*n + d.midX) / (n + 1)
				clusters[i].midY = (clusters[i].midY*n + d.midY) / (n + 1)
				clusters[i].sumDelta += d.deltaDB
				clusters[i].count++
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, cluster{midX: d.midX, midY: d.midY, sumDelta: d.deltaDB, count: 1})
		}
	}

	walls := make([]model.Wall, 0, len(clusters))
	for _, c := range clusters {
		mean := c.sumDelta / float64(c.count)
		walls = append(walls, model.Wall{
			MidX:        c.midX,
			MidY:        c.midY,
			Material:    materialForDelta(mean),
			DeltaDB:     mean,
			Confidence:  wallConfidence(c.count),
			SampleCount: c.count,
		})
	}
	return walls
}

func materialForDelta(deltaDB float64) model.WallMaterial {
	switch {
	case deltaDB <= 5:
		return model.WallGlass
	case deltaDB <= 10:
		return model.WallDrywall
	case deltaDB <= 18:
		return model.WallBrick
	case deltaDB <= 30:
		return model.WallConcrete
	default:
		return model.WallUnknown
	}
}

// wallConfidence grows with the number of samples intersecting the wall,
// saturating at 0.95 so a wall is never reported as fully certain.
func wallConfidence(sampleCount int) float64 {
	c := 1 - math.Exp(-float64(sampleCount)/3.0)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
