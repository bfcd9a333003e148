//go:build linux

package input

import "golang.design/x/hotkey"

// Mod1 is Alt on X11.
func modAlt() hotkey.Modifier {
	return hotkey.Mod1
}

// Mod4 is Super on X11.
func modSuper() hotkey.Modifier {
	return hotkey.Mod4
}
