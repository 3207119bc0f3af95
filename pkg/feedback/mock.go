package feedback

import (
	"sync"
	"time"
)

// MockSpeaker records spoken text.
type MockSpeaker struct {
	Unavailable bool

	mu    sync.Mutex
	texts []string
}

// Available reports !Unavailable.
func (m *MockSpeaker) Available() bool { return !m.Unavailable }

// Speak records text.
func (m *MockSpeaker) Speak(text string) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
}

// Calls returns every spoken text in order.
func (m *MockSpeaker) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

// CallCount returns the number of Speak calls.
func (m *MockSpeaker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

// MockHaptics records pulses.
type MockHaptics struct {
	Unavailable bool

	mu     sync.Mutex
	pulses []time.Duration
}

// Available reports !Unavailable.
func (m *MockHaptics) Available() bool { return !m.Unavailable }

// Vibrate records d.
func (m *MockHaptics) Vibrate(d time.Duration) {
	m.mu.Lock()
	m.pulses = append(m.pulses, d)
	m.mu.Unlock()
}

// Calls returns every pulse in order.
func (m *MockHaptics) Calls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.pulses))
	copy(out, m.pulses)
	return out
}

// CallCount returns the number of Vibrate calls.
func (m *MockHaptics) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pulses)
}

var (
	_ Speaker = (*MockSpeaker)(nil)
	_ Haptics = (*MockHaptics)(nil)
	_ Haptics = MultiHaptics(nil)
	_ Haptics = LogHaptics{}
)
