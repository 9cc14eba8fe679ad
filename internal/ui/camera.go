package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"SharedSketch/internal/geom"

	"fyne.io/fyne/v2"
)

const (
	moveStep = 0.02
	turnStep = math.Pi / 60
	// scanTime is how long a world map capture takes.
	scanTime = 300 * time.Millisecond
	// relocalizeTime is how long tracking stays limited after a world map
	// from the peer is applied.
	relocalizeTime = 500 * time.Millisecond
)

// Camera stands in for the AR tracker on the desktop. The keyboard moves
// and turns it; its pose is what strokes are projected from.
type Camera struct {
	mu          sync.Mutex
	position    geom.Vec3
	yaw, pitch  float32
	limitedTill time.Time
	now         func() time.Time
}

// worldMap is what the desktop camera shares: the pose to align to.
type worldMap struct {
	Position geom.Vec3 `json:"position"`
	Yaw      float32   `json:"yaw"`
	Pitch    float32   `json:"pitch"`
}

func NewCamera() *Camera {
	return &Camera{now: time.Now}
}

// CurrentPose returns the camera-to-world pose. ok is false while tracking
// is limited.
func (c *Camera) CurrentPose() (geom.Mat4, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose(), !c.now().Before(c.limitedTill)
}

func (c *Camera) pose() geom.Mat4 {
	yaw := geom.QuatFromAxisAngle(geom.V3(0, 1, 0), c.yaw)
	pitch := geom.QuatFromAxisAngle(geom.V3(1, 0, 0), c.pitch)
	return geom.TranslationMat4(c.position).Mul(geom.RotationMat4(yaw.Mul(pitch)))
}

// TrackingNormal reports whether tracking has recovered after a world map
// was applied.
func (c *Camera) TrackingNormal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.now().Before(c.limitedTill)
}

// Move translates the camera in its own frame.
func (c *Camera) Move(right, up, forward float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pose := c.pose()
	delta := pose.Col(0).Mul(right).Add(pose.Col(1).Mul(up)).Add(geom.CameraForward(pose).Mul(forward))
	c.position = c.position.Add(delta)
}

// Turn changes heading and pitch. Pitch is kept short of straight up or down.
func (c *Camera) Turn(yaw, pitch float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw += yaw
	c.pitch = max(-math.Pi/2+0.01, min(math.Pi/2-0.01, c.pitch+pitch))
}

// Key handles a keyboard event, reporting whether it moved the camera.
func (c *Camera) Key(name fyne.KeyName) bool {
	switch name {
	case fyne.KeyW:
		c.Move(0, 0, moveStep)
	case fyne.KeyS:
		c.Move(0, 0, -moveStep)
	case fyne.KeyA:
		c.Move(-moveStep, 0, 0)
	case fyne.KeyD:
		c.Move(moveStep, 0, 0)
	case fyne.KeyR:
		c.Move(0, moveStep, 0)
	case fyne.KeyF:
		c.Move(0, -moveStep, 0)
	case fyne.KeyLeft:
		c.Turn(turnStep, 0)
	case fyne.KeyRight:
		c.Turn(-turnStep, 0)
	case fyne.KeyUp:
		c.Turn(0, turnStep)
	case fyne.KeyDown:
		c.Turn(0, -turnStep)
	default:
		return false
	}
	return true
}

// CaptureWorldMap scans for a moment and returns the current pose.
func (c *Camera) CaptureWorldMap(ctx context.Context) ([]byte, error) {
	select {
	case <-time.After(scanTime):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	m := worldMap{Position: c.position, Yaw: c.yaw, Pitch: c.pitch}
	c.mu.Unlock()
	return json.Marshal(m)
}

// ApplyWorldMap aligns this camera with the peer's and limits tracking
// while it relocalises.
func (c *Camera) ApplyWorldMap(data []byte) error {
	var m worldMap
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("ui: world map: %w", err)
	}
	if !m.Position.IsFinite() || !geom.V3(m.Yaw, m.Pitch, 0).IsFinite() {
		return fmt.Errorf("ui: world map: %w", geom.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position, c.yaw, c.pitch = m.Position, m.Yaw, m.Pitch
	c.limitedTill = c.now().Add(relocalizeTime)
	return nil
}

// ResetTracking puts the camera back at the origin.
func (c *Camera) ResetTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = geom.Vec3{}
	c.yaw, c.pitch = 0, 0
	c.limitedTill = time.Time{}
}
