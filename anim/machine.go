package anim

// Clip is one playable animation on the rendering side.
type Clip interface {
	Start(loop bool)
	Stop()
}

// Clips maps tags to the clips that play them. Missing entries are skipped.
type Clips map[Tag]Clip

// Machine keeps exactly one animation playing. It is driven from a single
// frame loop and is not safe for concurrent use.
type Machine struct {
	clips   Clips
	current Tag
	playing map[Tag]bool
}

// NewMachine starts in Idle with the idle clip running.
func NewMachine(clips Clips) *Machine {
	m := &Machine{clips: clips, playing: make(map[Tag]bool, 1)}
	m.start(Idle)
	return m
}

// Current returns the active tag.
func (m *Machine) Current() Tag {
	return m.current
}

// Playing returns the tags whose clips are running.
func (m *Machine) Playing() []Tag {
	out := make([]Tag, 0, len(m.playing))
	for _, t := range Tags() {
		if m.playing[t] {
			out = append(out, t)
		}
	}
	return out
}

// Update resolves in and transitions to the result. It reports whether the
// active animation changed.
func (m *Machine) Update(in Intent) (Tag, bool) {
	t := Resolve(in)
	changed, _ := m.Set(t)
	return t, changed
}

// Set switches to t. Re-entering the current tag leaves the running clip
// alone.
func (m *Machine) Set(t Tag) (bool, error) {
	if !t.Valid() {
		return false, ErrUnknownTag
	}
	if t == m.current {
		return false, nil
	}
	for _, other := range Tags() {
		if other != t {
			m.stop(other)
		}
	}
	m.start(t)
	return true, nil
}

// StopAll halts every clip when the avatar goes away. The machine should not
// be reused afterwards.
func (m *Machine) StopAll() {
	for _, t := range Tags() {
		m.stop(t)
	}
}

func (m *Machine) start(t Tag) {
	m.current = t
	m.playing[t] = true
	if c, ok := m.clips[t]; ok && c != nil {
		c.Start(true)
	}
}

func (m *Machine) stop(t Tag) {
	if !m.playing[t] {
		return
	}
	delete(m.playing, t)
	if c, ok := m.clips[t]; ok && c != nil {
		c.Stop()
	}
}
