package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"taskboard/internal/dashboard"
	"taskboard/internal/session"
	taskboardsdk "taskboard/sdk/go"
)

// Options configures Run.
type Options struct {
	Client *taskboardsdk.Client
	Auth   *taskboardsdk.Auth
	Logger zerolog.Logger
	Dark   bool
}

// Run starts the session provider and the interactive dashboard, and blocks
// until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	provider := session.New(opts.Auth, opts.Auth, opts.Logger)
	provider.Start(ctx)
	defer provider.Stop()

	sessions, unsubscribe := provider.Subscribe()
	defer unsubscribe()

	d := dashboard.New(dashboard.ClientConnector(opts.Client), opts.Logger)
	d.SetDarkMode(opts.Dark)
	d.OnUnauthorized = func() { go provider.RefreshToken(ctx) }

	m := NewModel(ctx, Deps{
		Auth:      opts.Auth,
		Sessions:  sessions,
		Dashboard: d,
		Restore: func(ctx context.Context) error {
			_, err := opts.Auth.Restore(ctx)
			return err
		},
		Logger: opts.Logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
