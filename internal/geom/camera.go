package geom

import (
	"errors"
	"fmt"
	"math"

	"fyne.io/fyne/v2"
)

// ErrInvalidInput is returned for malformed poses, lenses or screen points.
var ErrInvalidInput = errors.New("geom: invalid input")

// DefaultDistance is how far in front of the camera a touch is placed, in
// metres.
const DefaultDistance float32 = 0.2

// Lens describes the camera projection needed to turn a normalised screen
// point into a view ray.
type Lens struct {
	FieldOfView float32 // vertical, radians
	Aspect      float32 // width / height
}

// DefaultLens is a 60 degree portrait lens.
func DefaultLens() Lens {
	return Lens{FieldOfView: math.Pi / 3, Aspect: 0.75}
}

func (l Lens) validate() error {
	if !finite(l.FieldOfView) || l.FieldOfView <= 0 || l.FieldOfView >= math.Pi {
		return fmt.Errorf("%w: field of view %v", ErrInvalidInput, l.FieldOfView)
	}
	if !finite(l.Aspect) || l.Aspect <= 0 {
		return fmt.Errorf("%w: aspect %v", ErrInvalidInput, l.Aspect)
	}
	return nil
}

func (l Lens) tanHalf() float32 {
	return float32(math.Tan(float64(l.FieldOfView) / 2))
}

// ValidatePose checks that pose is a usable camera-to-world transform.
func ValidatePose(pose Mat4) error {
	if !pose.IsFinite() {
		return fmt.Errorf("%w: pose has non-finite entries", ErrInvalidInput)
	}
	if pose[3] != 0 || pose[7] != 0 || pose[11] != 0 || pose[15] != 1 {
		return fmt.Errorf("%w: pose bottom row is not 0 0 0 1", ErrInvalidInput)
	}
	for c := 0; c < 3; c++ {
		if pose.Col(c).Length() < 1e-6 {
			return fmt.Errorf("%w: pose axis %d is degenerate", ErrInvalidInput, c)
		}
	}
	return nil
}

// CameraPosition is the translation column of pose.
func CameraPosition(pose Mat4) Vec3 {
	return pose.Col(3)
}

// CameraForward is the direction the camera looks along: -Z of the pose.
func CameraForward(pose Mat4) Vec3 {
	return pose.Col(2).Neg().Normalize()
}

// ViewVector is the vector handed to Extend alongside each sampled point.
// Pencil ribbons are built perpendicular to it.
func ViewVector(pose Mat4) Vec3 {
	return CameraForward(pose)
}

type frame struct {
	origin, right, up, back Vec3
}

func cameraFrame(pose Mat4) frame {
	return frame{
		origin: pose.Col(3),
		right:  pose.Col(0).Normalize(),
		up:     pose.Col(1).Normalize(),
		back:   pose.Col(2).Normalize(),
	}
}

func checkScreen(p fyne.Position) error {
	if !finite(p.X) || !finite(p.Y) {
		return fmt.Errorf("%w: screen point %v", ErrInvalidInput, p)
	}
	return nil
}

// Ray is a half line in world space with a unit direction.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float32) Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// PickRay returns the world-space ray through touch. touch is normalised:
// (0,0) is the top-left of the screen, (1,1) the bottom-right.
func PickRay(touch fyne.Position, pose Mat4, lens Lens) (Ray, error) {
	if err := ValidatePose(pose); err != nil {
		return Ray{}, err
	}
	if err := lens.validate(); err != nil {
		return Ray{}, err
	}
	if err := checkScreen(touch); err != nil {
		return Ray{}, err
	}
	f := cameraFrame(pose)
	t := lens.tanHalf()
	x := (2*touch.X - 1) * t * lens.Aspect
	y := (1 - 2*touch.Y) * t
	dir := f.right.Mul(x).Add(f.up.Mul(y)).Sub(f.back).Normalize()
	return Ray{Origin: f.origin, Dir: dir}, nil
}

// ProjectTouch places touch distance metres in front of the camera along
// its view ray.
func ProjectTouch(touch fyne.Position, pose Mat4, lens Lens, distance float32) (Vec3, error) {
	ray, err := PickRay(touch, pose, lens)
	if err != nil {
		return Vec3{}, err
	}
	return ray.At(distance), nil
}

// ProjectToScreen returns the normalised screen position of p and its
// depth along the view direction. ok is false when p is behind the camera.
func ProjectToScreen(p Vec3, pose Mat4, lens Lens) (screen fyne.Position, depth float32, ok bool) {
	if ValidatePose(pose) != nil || lens.validate() != nil || !p.IsFinite() {
		return fyne.Position{}, 0, false
	}
	f := cameraFrame(pose)
	d := p.Sub(f.origin)
	depth = -d.Dot(f.back)
	if depth <= 1e-6 {
		return fyne.Position{}, depth, false
	}
	t := lens.tanHalf()
	x := d.Dot(f.right) / depth / (t * lens.Aspect)
	y := d.Dot(f.up) / depth / t
	return fyne.NewPos((x+1)/2, (1-y)/2), depth, true
}

// UnprojectAtDepth is the inverse of ProjectToScreen for a known depth.
func UnprojectAtDepth(screen fyne.Position, pose Mat4, lens Lens, depth float32) (Vec3, error) {
	if err := ValidatePose(pose); err != nil {
		return Vec3{}, err
	}
	if err := lens.validate(); err != nil {
		return Vec3{}, err
	}
	if err := checkScreen(screen); err != nil {
		return Vec3{}, err
	}
	if !finite(depth) || depth <= 0 {
		return Vec3{}, fmt.Errorf("%w: depth %v", ErrInvalidInput, depth)
	}
	f := cameraFrame(pose)
	t := lens.tanHalf()
	x := (2*screen.X - 1) * t * lens.Aspect * depth
	y := (1 - 2*screen.Y) * t * depth
	return f.origin.Add(f.right.Mul(x)).Add(f.up.Mul(y)).Sub(f.back.Mul(depth)), nil
}
