package gpio

import (
	"errors"
	"sync"
)

// FakeInput is a test double that returns scripted levels.
type FakeInput struct {
	mu sync.Mutex

	// Levels contains scripted values. Each call to Level consumes the next
	// one; once exhausted the last value repeats.
	Levels []Level

	index int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, is returned by Level.
	ReadError error
}

// NewFakeInput creates a FakeInput with the given script.
func NewFakeInput(levels ...Level) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Level returns the next scripted level.
func (f *FakeInput) Level() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Low, f.ReadError
	}
	if len(f.Levels) == 0 {
		return Low, errors.New("no levels configured")
	}

	l := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return l, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset rewinds the script.
func (f *FakeInput) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Closed = false
	f.mu.Unlock()
}

// FakeOutput records every level written.
type FakeOutput struct {
	mu     sync.Mutex
	level  Level
	writes []Level
	closed bool
	SetErr error
}

// NewFakeOutput creates a FakeOutput starting at initial.
func NewFakeOutput(initial Level) *FakeOutput {
	return &FakeOutput{level: initial}
}

// Set records level.
func (f *FakeOutput) Set(level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	f.level = level
	f.writes = append(f.writes, level)
	return nil
}

// Level returns the last level written.
func (f *FakeOutput) Level() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Writes returns a copy of the write history.
func (f *FakeOutput) Writes() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Level(nil), f.writes...)
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// IsClosed reports whether Close was called.
func (f *FakeOutput) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
