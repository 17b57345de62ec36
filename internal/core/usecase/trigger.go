package usecase

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

const (
	DefaultMinParagraphChars = 20
	DefaultMaxParagraphChars = 5000
	DefaultTriggerDebounce   = 500 * time.Millisecond
)

type TriggerConfig struct {
	MinChars int
	MaxChars int
	// Debounce coalesces bursts of paragraph signals; zero disables it.
	Debounce time.Duration
}

func (c TriggerConfig) normalize() TriggerConfig {
	out := c
	if out.MinChars <= 0 {
		out.MinChars = DefaultMinParagraphChars
	}
	if out.MaxChars < out.MinChars {
		out.MaxChars = DefaultMaxParagraphChars
	}
	if out.Debounce < 0 {
		out.Debounce = 0
	}
	return out
}

// ParagraphTrigger decides which paragraph-changed signals start a search.
type ParagraphTrigger struct {
	cfg   TriggerConfig
	clock ports.Clock
	fire  func(text string)

	wg sync.WaitGroup

	mu      sync.Mutex
	auto    bool
	last    string
	hasLast bool
	timer   ports.Timer
	token   uint64
	closed  bool
}

// NewParagraphTrigger starts in automatic mode. fire runs outside the
// trigger lock, on the caller's goroutine or the debounce timer's.
func NewParagraphTrigger(cfg TriggerConfig, clock ports.Clock, fire func(text string)) *ParagraphTrigger {
	if clock == nil {
		clock = SystemClock()
	}
	return &ParagraphTrigger{
		cfg:   cfg.normalize(),
		clock: clock,
		fire:  fire,
		auto:  true,
	}
}

func (p *ParagraphTrigger) AutoMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auto
}

// SetAutoMode toggles automatic searching. Turning it off forgets the last
// paragraph and drops any pending debounced signal.
func (p *ParagraphTrigger) SetAutoMode(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.auto = enabled
	if !enabled {
		p.last = ""
		p.hasLast = false
		p.stopTimerLocked()
	}
}

// Observe handles one paragraph-changed signal. It reports whether a search
// fired synchronously.
func (p *ParagraphTrigger) Observe(text string) bool {
	p.mu.Lock()
	if p.closed || !p.auto {
		p.mu.Unlock()
		return false
	}
	if p.cfg.Debounce > 0 {
		p.stopTimerLocked()
		p.token++
		token := p.token
		p.timer = p.clock.AfterFunc(p.cfg.Debounce, func() {
			p.flush(text, token)
		})
		p.mu.Unlock()
		return false
	}
	ok := p.acceptLocked(text)
	p.mu.Unlock()

	if ok {
		p.fire(text)
	}
	return ok
}

// Close drops any pending debounced signal and waits for a running one.
func (p *ParagraphTrigger) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopTimerLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *ParagraphTrigger) flush(text string, token uint64) {
	p.mu.Lock()
	if p.closed || !p.auto || token != p.token {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	ok := p.acceptLocked(text)
	if ok {
		p.wg.Add(1)
	}
	p.mu.Unlock()

	if ok {
		defer p.wg.Done()
		p.fire(text)
	}
}

func (p *ParagraphTrigger) acceptLocked(text string) bool {
	if p.hasLast && p.last == text {
		return false
	}
	p.last = text
	p.hasLast = true

	n := utf8.RuneCountInString(strings.TrimSpace(text))
	return n >= p.cfg.MinChars && n <= p.cfg.MaxChars
}

func (p *ParagraphTrigger) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.token++
}
