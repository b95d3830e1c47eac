package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roach88/fogtimer/internal/engine"
)

// TickChannel returns a session tick callback and the channel it feeds.
// The callback never blocks: a tick is dropped when the screen has not
// consumed the previous one yet.
func TickChannel() (engine.TickFunc, <-chan int64) {
	ch := make(chan int64, 1)
	return func(elapsedMs int64) {
		select {
		case ch <- elapsedMs:
		default:
		}
	}, ch
}

// Run shows the trial screen until the operator quits or ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	m := newModel(ctx, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		cfg.Session.Close()
		return ctx.Err()
	case err := <-done:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}
