package input

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// PushToTalk toggles the microphone from a global hotkey. Each keydown flips between
// pressed and released.
type PushToTalk struct {
	mu       sync.Mutex
	hk       *hotkey.Hotkey
	pressed  bool
	onToggle func(pressed bool)
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPushToTalk(onToggle func(pressed bool)) *PushToTalk {
	return &PushToTalk{
		onToggle: onToggle,
		done:     make(chan struct{}),
	}
}

// Start registers the hotkey and listens until ctx ends or Stop is called.
func (p *PushToTalk) Start(ctx context.Context, binding string) error {
	mods, key, err := ParseHotkey(binding)
	if err != nil {
		return fmt.Errorf("invalid hotkey: %w", err)
	}

	p.hk = hotkey.New(mods, key)
	if err := p.hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %q: %w", binding, err)
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-p.hk.Keydown():
				if !ok {
					return
				}
				p.toggle()
			}
		}
	}()

	return nil
}

func (p *PushToTalk) toggle() {
	p.mu.Lock()
	p.pressed = !p.pressed
	pressed := p.pressed
	p.mu.Unlock()

	if p.onToggle != nil {
		p.onToggle(pressed)
	}
}

// Reset marks the key as released without calling onToggle.
func (p *PushToTalk) Reset() {
	p.mu.Lock()
	p.pressed = false
	p.mu.Unlock()
}

func (p *PushToTalk) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.hk != nil {
		p.hk.Unregister()
		select {
		case <-p.done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (p *PushToTalk) Pressed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressed
}

// ParseHotkey parses a binding like "ctrl+shift+space" into modifiers and key.
func ParseHotkey(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, 0, fmt.Errorf("empty hotkey string")
	}

	var mods []hotkey.Modifier
	var key hotkey.Key
	var keyFound bool

	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt", "option":
			mods = append(mods, modAlt())
		case "cmd", "command", "super", "win":
			mods = append(mods, modSuper())
		default:
			if keyFound {
				return nil, 0, fmt.Errorf("multiple keys specified")
			}
			k, err := parseKey(part)
			if err != nil {
				return nil, 0, err
			}
			key = k
			keyFound = true
		}
	}

	if !keyFound {
		return nil, 0, fmt.Errorf("no key specified")
	}
	return mods, key, nil
}

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}

var letterKeys = [...]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF, hotkey.KeyG,
	hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL, hotkey.KeyM, hotkey.KeyN,
	hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR, hotkey.KeyS, hotkey.KeyT, hotkey.KeyU,
	hotkey.KeyV, hotkey.KeyW, hotkey.KeyX, hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = [...]hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

func parseKey(s string) (hotkey.Key, error) {
	if k, ok := namedKeys[s]; ok {
		return k, nil
	}
	if len(s) == 1 {
		switch c := s[0]; {
		case c >= 'a' && c <= 'z':
			return letterKeys[c-'a'], nil
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], nil
		}
	}
	return 0, fmt.Errorf("unknown key: %s", s)
}
