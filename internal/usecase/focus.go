package usecase

import (
	"sync/atomic"

	"interviewdesk/internal/domain"
)

// FocusGuard turns fullscreen, blur and visibility changes into focus-lost reports, skipping
// the one change that follows a self-initiated fullscreen exit.
type FocusGuard struct {
	intentional atomic.Bool
	onLost      func(reason domain.PauseReason)
}

func NewFocusGuard(onLost func(reason domain.PauseReason)) *FocusGuard {
	return &FocusGuard{onLost: onLost}
}

// MarkIntentionalExit must be called immediately before leaving fullscreen on purpose.
func (g *FocusGuard) MarkIntentionalExit() {
	g.intentional.Store(true)
}

// ObserveFullscreen reports a fullscreen change.
func (g *FocusGuard) ObserveFullscreen(active bool) {
	if g.consumeIntentional() || active {
		return
	}
	g.report(domain.PauseFullscreenExit)
}

// ObserveBlur reports that the window lost focus.
func (g *FocusGuard) ObserveBlur() {
	if g.consumeIntentional() {
		return
	}
	g.report(domain.PauseTabBlur)
}

// ObserveVisibility reports a visibility change.
func (g *FocusGuard) ObserveVisibility(hidden bool) {
	if g.consumeIntentional() || !hidden {
		return
	}
	g.report(domain.PauseTabBlur)
}

// consumeIntentional clears the flag on every observed change and reports whether it was set.
func (g *FocusGuard) consumeIntentional() bool {
	return g.intentional.Swap(false)
}

func (g *FocusGuard) report(reason domain.PauseReason) {
	if g.onLost != nil {
		g.onLost(reason)
	}
}
