// Package particles animates the decorative particle field shown in the
// terminal UI header.
package particles

import (
	"math"
	"math/rand/v2"
	"strings"
)

const (
	minParticles = 40
	maxParticles = 140
	// density is particles per square unit of field area.
	density = 0.00006

	minSpeed  = 0.15
	maxSpeed  = 0.45
	minRadius = 1.0
	maxRadius = 2.2

	wrapMargin = 20.0
	damping    = 0.995

	// pointerInfluence is the radius inside which the pointer pushes particles away.
	pointerInfluence = 140.0
	pointerForce     = 0.6 * 0.12
)

// Particle is one moving dot.
type Particle struct {
	X, Y   float64
	VX, VY float64
	R      float64
}

// Field owns the particles, the field size and the pointer. It is not safe
// for concurrent use; the UI drives it from its update loop.
type Field struct {
	width, height float64
	particles     []Particle
	rng           *rand.Rand

	pointerX, pointerY float64
	pointerActive      bool
}

// New creates an empty field. A nil rng uses a randomly seeded source.
func New(rng *rand.Rand) *Field {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Field{rng: rng}
}

// TargetCount is how many particles a field of the given area holds.
func TargetCount(width, height float64) int {
	n := int(math.Floor(width * height * density))
	return max(minParticles, min(maxParticles, n))
}

// Init sizes the field and respawns its particles. It doubles as the resize
// handler.
func (f *Field) Init(width, height float64) {
	f.width = math.Max(0, width)
	f.height = math.Max(0, height)

	n := TargetCount(f.width, f.height)
	f.particles = make([]Particle, n)
	for i := range f.particles {
		f.particles[i] = f.spawn()
	}
}

func (f *Field) spawn() Particle {
	speed := f.between(minSpeed, maxSpeed)
	angle := f.between(0, 2*math.Pi)
	return Particle{
		X:  f.between(0, f.width),
		Y:  f.between(0, f.height),
		VX: math.Cos(angle) * speed,
		VY: math.Sin(angle) * speed,
		R:  f.between(minRadius, maxRadius),
	}
}

func (f *Field) between(lo, hi float64) float64 {
	return lo + f.rng.Float64()*(hi-lo)
}

// SetPointer places the pointer at field coordinates.
func (f *Field) SetPointer(x, y float64) {
	f.pointerX, f.pointerY = x, y
	f.pointerActive = true
}

// ClearPointer removes the pointer's influence.
func (f *Field) ClearPointer() {
	f.pointerActive = false
}

// Step advances the animation by one frame.
func (f *Field) Step() {
	for i := range f.particles {
		p := &f.particles[i]

		if f.pointerActive {
			dx := p.X - f.pointerX
			dy := p.Y - f.pointerY
			dsq := dx*dx + dy*dy
			if dsq < pointerInfluence*pointerInfluence {
				dist := math.Sqrt(dsq)
				if dist == 0 {
					dist = 1
				}
				force := (pointerInfluence - dist) / pointerInfluence * pointerForce
				p.VX += dx / dist * force
				p.VY += dy / dist * force
			}
		}

		p.X += p.VX
		p.Y += p.VY
		p.X = wrap(p.X, f.width)
		p.Y = wrap(p.Y, f.height)
		p.VX *= damping
		p.VY *= damping
	}
}

// wrap moves a coordinate that left the margin band to the opposite side.
func wrap(v, size float64) float64 {
	switch {
	case v < -wrapMargin:
		return size + wrapMargin
	case v > size+wrapMargin:
		return -wrapMargin
	}
	return v
}

// Particles returns a copy of the current particles.
func (f *Field) Particles() []Particle {
	out := make([]Particle, len(f.particles))
	copy(out, f.particles)
	return out
}

// Len returns the particle count.
func (f *Field) Len() int { return len(f.particles) }

// Size returns the field dimensions.
func (f *Field) Size() (width, height float64) { return f.width, f.height }

// Render rasterizes the field into rows of cols characters. Particles in the
// margin band are not drawn.
func (f *Field) Render(cols, rows int) []string {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	grid := make([][]rune, rows)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", cols))
	}

	if f.width > 0 && f.height > 0 {
		for _, p := range f.particles {
			if p.X < 0 || p.Y < 0 || p.X >= f.width || p.Y >= f.height {
				continue
			}
			c := int(p.X / f.width * float64(cols))
			r := int(p.Y / f.height * float64(rows))
			glyph := '·'
			if p.R >= 1.6 {
				glyph = '•'
			}
			if grid[r][c] != ' ' {
				glyph = '•'
			}
			grid[r][c] = glyph
		}
	}

	lines := make([]string, rows)
	for r, row := range grid {
		lines[r] = string(row)
	}
	return lines
}

// Teardown drops the particles and the pointer.
func (f *Field) Teardown() {
	f.particles = nil
	f.pointerActive = false
	f.width, f.height = 0, 0
}
