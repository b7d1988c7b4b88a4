package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner animates a progress line while a blocking call runs.
// The feed TUI animates its own frames; this one is for plain commands.
type Spinner struct {
	out  io.Writer
	msg  string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSpinner creates a spinner that draws msg on out.
func NewSpinner(out io.Writer, msg string) *Spinner {
	return &Spinner{
		out:  out,
		msg:  msg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the animation in a goroutine.
func (s *Spinner) Start() {
	go func() {
		defer close(s.done)
		t := time.NewTicker(80 * time.Millisecond)
		defer t.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r%s  %s", StyleInfo.Render(spinFrames[i%len(spinFrames)]), s.msg)
			select {
			case <-s.stop:
				fmt.Fprintf(s.out, "\r%-70s\r", "")
				return
			case <-t.C:
			}
		}
	}()
}

// Stop halts the spinner and waits for the line to clear. Safe to call twice.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
