package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"ai-playground/internal/screen"
)

// CommandOpener plays audio by running argv with the audio URL appended,
// e.g. []string{"mpv", "--no-video"}.
func CommandOpener(argv []string) screen.PlayerOpener {
	argv = append([]string(nil), argv...)
	return func(_ context.Context, url string) (screen.Player, error) {
		if len(argv) == 0 {
			return nil, errors.New("shell: player command is empty")
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			return nil, fmt.Errorf("shell: player command: %w", err)
		}
		return &commandPlayer{argv: argv, url: url}, nil
	}
}

// commandPlayer has no seekable state: Pause stops the program and the next
// Play starts it again from the beginning.
type commandPlayer struct {
	argv []string
	url  string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *commandPlayer) Play(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running() {
		return nil
	}

	args := append(append([]string(nil), p.argv[1:]...), p.url)
	cmd := exec.Command(p.argv[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("shell: start player: %w", err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	p.cmd, p.done = cmd, done
	return nil
}

func (p *commandPlayer) Pause(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

// Active turns false once the program exits, including when the audio ends.
func (p *commandPlayer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

func (p *commandPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

// running must be called with mu held.
func (p *commandPlayer) running() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *commandPlayer) stopLocked() error {
	if !p.running() {
		p.cmd, p.done = nil, nil
		return nil
	}
	err := p.cmd.Process.Kill()
	<-p.done
	p.cmd, p.done = nil, nil
	if err != nil {
		return fmt.Errorf("shell: stop player: %w", err)
	}
	return nil
}
