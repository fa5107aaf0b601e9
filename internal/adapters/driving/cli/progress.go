package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driving"
)

// statusMsg carries a progress snapshot into the progress model.
type statusMsg driving.SyncStatus

// doneMsg signals that the run has returned and the UI should exit.
type doneMsg struct{}

var (
	progressTitleStyle = lipgloss.NewStyle().Bold(true)
	progressCountStyle = lipgloss.NewStyle().Faint(true)
)

// progressModel renders a live progress bar for one sync run.
type progressModel struct {
	query    string
	bar      progress.Model
	status   driving.SyncStatus
	cancel   context.CancelFunc
	quitting bool
}

func newProgressModel(query string, cancel context.CancelFunc) progressModel {
	return progressModel{
		query:  query,
		bar:    progress.New(progress.WithDefaultGradient()),
		cancel: cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// Cancel the run and let it checkpoint; the done message
			// arrives once the orchestrator has persisted its state.
			m.cancel()
			m.quitting = true
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 8
		return m, nil
	case statusMsg:
		m.status = driving.SyncStatus(msg)
		return m, nil
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	percent := 0.0
	if m.status.TotalItems > 0 {
		percent = float64(m.status.ProcessedItems) / float64(m.status.TotalItems)
	}

	title := progressTitleStyle.Render(fmt.Sprintf("Syncing %q", m.query))
	if m.quitting {
		title = progressTitleStyle.Render("Stopping, saving checkpoint...")
	}
	counts := progressCountStyle.Render(fmt.Sprintf(
		"%d/%d messages, %d failed",
		m.status.ProcessedItems, m.status.TotalItems, m.status.FailedItems))

	return fmt.Sprintf("\n  %s\n\n  %s\n\n  %s\n", title, m.bar.ViewAs(percent), counts)
}

// syncWithProgressBar runs the sync behind an interactive progress bar.
// Ctrl+C cancels the run context so the orchestrator can checkpoint
// before the UI exits.
func syncWithProgressBar(
	ctx context.Context,
	orch driving.SyncOrchestrator,
	req driving.RunRequest,
) (*domain.SyncCheckpoint, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(req.Query, cancel))

	type result struct {
		cp  *domain.SyncCheckpoint
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		cp, err := orch.Run(runCtx, req)
		resCh <- result{cp, err}
		p.Send(doneMsg{})
	}()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if status, err := orch.Status(runCtx, req.Query); err == nil {
					p.Send(statusMsg(*status))
				}
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		// The run itself keeps going; cancel it so we do not leak it.
		cancel()
	}

	res := <-resCh
	return res.cp, res.err
}
