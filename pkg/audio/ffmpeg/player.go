package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/MrWong99/testcall/pkg/audio"
)

const defaultPlayer = "ffplay"

// Player implements audio.Player with ffplay.
type Player struct {
	command string
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns a Player that runs command (default "ffplay").
func NewPlayer(command string) *Player {
	if command == "" {
		command = defaultPlayer
	}
	return &Player{command: command}
}

// Play implements audio.Player. Cancelling ctx interrupts ffplay and returns
// ctx.Err().
func (p *Player) Play(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, p.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		path,
	)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("ffplay: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
