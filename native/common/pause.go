package common

import "errors"

// ErrModulePaused is returned when a mutating entry point is invoked while the
// module's pause switch is engaged.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the administrative pause switches maintained outside the
// staking core.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view means no
// pause plumbing is wired and the call proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
