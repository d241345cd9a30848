package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/MrWong99/testcall/pkg/audio"
)

// Host answers permission requests and tracks the audio session mode for a
// desktop machine. Desktop sound servers route capture and playback
// independently, so switching modes only has to be recorded, not applied.
type Host struct {
	allowed bool
	command string
	lookup  func(string) (string, error)

	mu   sync.Mutex
	mode audio.Mode
}

var (
	_ audio.Permissions = (*Host)(nil)
	_ audio.Session     = (*Host)(nil)
)

// NewHost returns a Host. allowed mirrors the operator's
// audio.microphone_allowed setting; command is the capture binary that must
// be present on PATH.
func NewHost(allowed bool, command string) *Host {
	if command == "" {
		command = defaultCommand
	}
	return &Host{allowed: allowed, command: command, lookup: exec.LookPath}
}

// RequestMicrophone implements audio.Permissions.
func (h *Host) RequestMicrophone(_ context.Context) (bool, error) {
	if !h.allowed {
		return false, nil
	}
	if _, err := h.lookup(h.command); err != nil {
		return false, fmt.Errorf("ffmpeg: %w: %s not found: %v", audio.ErrDeviceUnavailable, h.command, err)
	}
	return true, nil
}

// Configure implements audio.Session.
func (h *Host) Configure(_ context.Context, mode audio.Mode) error {
	switch mode {
	case audio.ModeIdle, audio.ModeRecord, audio.ModePlayback:
	default:
		return fmt.Errorf("ffmpeg: unknown audio mode %d", int(mode))
	}
	h.mu.Lock()
	prev := h.mode
	h.mode = mode
	h.mu.Unlock()
	if prev != mode {
		slog.Debug("audio session mode changed", "from", prev, "to", mode)
	}
	return nil
}

// Mode returns the current session mode.
func (h *Host) Mode() audio.Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}
