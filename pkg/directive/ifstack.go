package directive

// condFrame is one nested #if/#ifdef/#ifndef chain: whether its current
// branch is producing output, whether any branch in the chain has been
// taken yet (so a later #elif/#else can't activate), and whether the
// enclosing context is itself active (an ancestor's false branch
// suppresses everything beneath it regardless of this chain's own
// conditions). This realizes spec.md §4.3's conditional-inclusion state
// machine as three independent flags rather than a single numbered
// state, which composes more clearly in Go; see DESIGN.md.
type condFrame struct {
	parentActive bool
	anyTaken     bool
	sawElse      bool
	active       bool
}

// IfStack is the nesting stack of conditional-inclusion chains for one
// file's directive parser.
type IfStack struct {
	frames []condFrame
}

func (s *IfStack) Depth() int { return len(s.frames) }

func (s *IfStack) top() *condFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// active reports whether tokens reached right now should be emitted.
func (s *IfStack) active() bool {
	f := s.top()
	return f == nil || f.active
}

// PushIf opens a new chain. cond is the already-evaluated truth of the
// #if/#ifdef/#ifndef condition; the caller is responsible for passing
// false without evaluating anything when the parent is already
// inactive, so a malformed expression in dead code never errors.
func (s *IfStack) PushIf(cond bool) {
	parent := s.active()
	f := condFrame{parentActive: parent}
	f.active = parent && cond
	if f.active {
		f.anyTaken = true
	}
	s.frames = append(s.frames, f)
}

// ElifNeedsValue reports whether an #elif's expression's truth value
// actually matters: the parent chain must be active and no earlier
// branch in this chain can have been taken already.
func (s *IfStack) ElifNeedsValue() bool {
	f := s.top()
	return f != nil && f.parentActive && !f.anyTaken
}

// ParentChainActive reports whether this chain's enclosing context is
// active, independent of whether this chain has already taken a branch
// — used to decide whether a discarded #elif expression should still
// be parsed for errors under FeatPedanticElif.
func (s *IfStack) ParentChainActive() bool {
	f := s.top()
	return f != nil && f.parentActive
}

func (s *IfStack) ApplyElif(cond bool) {
	f := s.top()
	f.active = f.parentActive && !f.anyTaken && cond
	if f.active {
		f.anyTaken = true
	}
}

func (s *IfStack) ApplyElse() {
	f := s.top()
	f.sawElse = true
	f.active = f.parentActive && !f.anyTaken
	if f.active {
		f.anyTaken = true
	}
}

func (s *IfStack) Pop() {
	s.frames = s.frames[:len(s.frames)-1]
}
