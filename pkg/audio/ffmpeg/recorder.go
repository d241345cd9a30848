// Package ffmpeg implements the audio device interfaces for desktop hosts by
// shelling out to ffmpeg (capture) and ffplay (playback).
//
// Capture writes straight into the target WAV file. On Stop the recorder sends
// an interrupt so ffmpeg can finalise the header, and kills the process if it
// does not exit within a short grace period.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/testcall/pkg/audio"
)

const (
	defaultCommand     = "ffmpeg"
	defaultInputFormat = "pulse"
	defaultInputDevice = "default"

	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithCommand overrides the ffmpeg binary (name or path).
func WithCommand(cmd string) RecorderOption {
	return func(r *Recorder) {
		if cmd != "" {
			r.command = cmd
		}
	}
}

// WithInput selects the ffmpeg input format and device, e.g. ("pulse",
// "default"), ("alsa", "hw:1") or ("avfoundation", ":0").
func WithInput(format, device string) RecorderOption {
	return func(r *Recorder) {
		if format != "" {
			r.inputFormat = format
		}
		if device != "" {
			r.inputDevice = device
		}
	}
}

// Recorder implements audio.Recorder with an ffmpeg child process.
type Recorder struct {
	command     string
	inputFormat string
	inputDevice string
}

var _ audio.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder capturing from the default PulseAudio source.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		command:     defaultCommand,
		inputFormat: defaultInputFormat,
		inputDevice: defaultInputDevice,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// args returns the ffmpeg argument list for capturing into path.
func (r *Recorder) args(path string, f audio.Format) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", r.inputFormat,
		"-i", r.inputDevice,
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-c:a", "pcm_s16le",
		"-y", path,
	}
}

// Record implements audio.Recorder.
func (r *Recorder) Record(ctx context.Context, path string, f audio.Format) (audio.RecordHandle, error) {
	if f.SampleRate <= 0 {
		f.SampleRate = audio.SpeechFormat.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = audio.SpeechFormat.Channels
	}

	// The process outlives the caller's ctx: it is owned by the handle and
	// ends on Stop. ctx only bounds startup.
	cmd := exec.Command(r.command, r.args(path, f)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start capture: %w", err)
	}

	h := &recordHandle{
		process: cmd.Process,
		stderr:  &stderr,
		waitErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	go func() {
		h.waitErr <- cmd.Wait()
		close(h.waitErr)
		close(h.done)
	}()

	select {
	case err := <-h.waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: exited before capture started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.New("ffmpeg: exited before capture started")
	case <-ctx.Done():
		_ = h.Stop()
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}
	return h, nil
}

type recordHandle struct {
	process *os.Process
	stderr  *bytes.Buffer
	waitErr chan error
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (h *recordHandle) Done() <-chan struct{} { return h.done }

func (h *recordHandle) Stop() error {
	h.stopOnce.Do(func() {
		_ = h.process.Signal(os.Interrupt)

		select {
		case err, ok := <-h.waitErr:
			if ok {
				h.stopErr = normalizeExit(err)
			}
		case <-time.After(stopGrace):
			_ = h.process.Kill()
			if err, ok := <-h.waitErr; ok {
				h.stopErr = normalizeExit(err)
			}
		}

		if h.stopErr != nil && h.stderr.Len() > 0 {
			h.stopErr = fmt.Errorf("%w: %s", h.stopErr, strings.TrimSpace(h.stderr.String()))
		}
	})
	return h.stopErr
}

// normalizeExit treats a non-zero exit status as a clean stop: ffmpeg exits
// 255 when interrupted.
func normalizeExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
