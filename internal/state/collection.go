package state

import "github.com/google/uuid"

// collection is an ordered list of strokes with a "current" pointer and,
// for local strokes, an undo stack.
type collection struct {
	strokes []*Stroke
	current *Stroke
	undone  []*Stroke
}

func (c *collection) index(id uuid.UUID) int {
	for i, s := range c.strokes {
		if s.id == id {
			return i
		}
	}
	return -1
}

func (c *collection) get(id uuid.UUID) *Stroke {
	if i := c.index(id); i >= 0 {
		return c.strokes[i]
	}
	return nil
}

func (c *collection) contains(s *Stroke) bool {
	for _, x := range c.strokes {
		if x == s {
			return true
		}
	}
	return false
}

// remove takes id out of the list. When it was current, current falls back
// to the last remaining stroke.
func (c *collection) remove(id uuid.UUID) *Stroke {
	i := c.index(id)
	if i < 0 {
		return nil
	}
	s := c.strokes[i]
	c.strokes = append(c.strokes[:i], c.strokes[i+1:]...)
	if c.current == s {
		c.current = c.last()
	}
	return s
}

func (c *collection) last() *Stroke {
	if len(c.strokes) == 0 {
		return nil
	}
	return c.strokes[len(c.strokes)-1]
}

func (c *collection) snapshot() []*Stroke {
	return append([]*Stroke(nil), c.strokes...)
}

func (c *collection) clear() {
	c.strokes = nil
	c.current = nil
	c.undone = nil
}
