package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const defaultSpinnerInterval = 120 * time.Millisecond

// consoleSpinner animates a single status line on stderr while a console-mode
// operation runs. It stays invisible until the delay elapses, so operations
// that finish quickly never flash a spinner at all.
type consoleSpinner struct {
	writer        io.Writer
	delay         time.Duration
	frameInterval time.Duration
	frames        []rune

	messages chan string
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	frameIdx int
}

func newConsoleSpinner(w io.Writer, delay time.Duration) *consoleSpinner {
	return newCustomConsoleSpinner(w, delay, defaultSpinnerInterval)
}

func newCustomConsoleSpinner(w io.Writer, delay, frameInterval time.Duration) *consoleSpinner {
	if w == nil {
		w = io.Discard
	}
	sp := &consoleSpinner{
		writer:        w,
		delay:         delay,
		frameInterval: frameInterval,
		frames:        []rune{'|', '/', '-', '\\'},
		messages:      make(chan string, 8),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go sp.loop()
	return sp
}

// Message sets the text shown next to the spinner frame.
func (s *consoleSpinner) Message(text string) {
	if s == nil {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	select {
	case s.messages <- text:
	default:
	}
}

// Stop halts the animation and clears the line. Safe to call more than once.
func (s *consoleSpinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *consoleSpinner) loop() {
	defer close(s.doneCh)

	var delayCh <-chan time.Time
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		delayCh = timer.C
	} else {
		delayCh = nil
	}

	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	var current string
	hasMessage := false
	visible := s.delay == 0

	for {
		select {
		case <-s.stopCh:
			if visible {
				s.clearLine()
			}
			return
		case msg := <-s.messages:
			current = msg
			hasMessage = true
			if visible {
				s.render(current)
			}
		case <-ticker.C:
			if visible && hasMessage {
				s.render(current)
			}
		case <-delayCh:
			delayCh = nil
			if hasMessage {
				visible = true
				s.render(current)
			}
		}
	}
}

func (s *consoleSpinner) render(message string) {
	frame := s.nextFrame()
	if strings.TrimSpace(message) == "" {
		message = "Working..."
	}
	_, _ = fmt.Fprintf(s.writer, "\r\033[2K%c %s", frame, message)
}

func (s *consoleSpinner) clearLine() {
	_, _ = fmt.Fprint(s.writer, "\r\033[2K")
}

func (s *consoleSpinner) nextFrame() rune {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.frames[s.frameIdx%len(s.frames)]
	s.frameIdx++
	return frame
}
