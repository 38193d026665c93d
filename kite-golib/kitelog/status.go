package kitelog

import (
	"fmt"
	"io"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Status writes a single line of progress that is overwritten in place,
// e.g "\r[scored 12,000 in ~3 minutes]".
type Status struct {
	m     sync.Mutex
	w     io.Writer
	label string
	start time.Time
	dirty bool
}

// NewStatus creates a Status line with the given label.
func NewStatus(w io.Writer, label string) *Status {
	return &Status{
		w:     w,
		label: label,
		start: time.Now(),
	}
}

// Update overwrites the status line with the current count.
func (s *Status) Update(n int) {
	s.m.Lock()
	defer s.m.Unlock()
	fmt.Fprintf(s.w, "\r[%s %s in ~%d minutes]", s.label, humanize.Comma(int64(n)), int(time.Since(s.start).Minutes()))
	s.dirty = true
}

// Done terminates the status line.
func (s *Status) Done() {
	s.m.Lock()
	defer s.m.Unlock()
	if s.dirty {
		fmt.Fprintln(s.w)
		s.dirty = false
	}
}
