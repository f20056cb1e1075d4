package display

// spinner cycles through braille frames while no reading is available.
type spinner struct {
	frames []string
	index  int
}

func newSpinner() *spinner {
	return &spinner{frames: []string{
		"⣀⣀", "⣄⣀", "⣤⣀", "⣦⣄", "⣶⣤", "⣿⣦", "⣿⣷", "⣿⣿",
		"⣷⣿", "⣦⣿", "⣤⣷", "⣄⣦", "⣀⣤", "⣀⣄",
	}}
}

// next returns the current frame and advances.
func (s *spinner) next() string {
	f := s.frames[s.index]
	s.index = (s.index + 1) % len(s.frames)
	return f
}
