package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// watchModel is the bubbletea Model for the "watch" subcommand: a live
// per-device progress table plus a scrolling log tail, fed by events read
// off the job's WebSocket stream, grounded on the teacher's
// internal/cli/tui.Model (unit table + log pane) generalized from "parallel
// dev units" to "parallel device applies".
type watchModel struct {
	jobID       string
	jobStatus   string
	deviceOrder []string
	devices     map[string]string // device key -> DeviceResultStatus
	logTail     []string
	logLimit    int
	done        bool
	err         error
	styles      watchStyles
	progress    progress.Model
}

type watchStyles struct {
	title   lipgloss.Style
	success lipgloss.Style
	failed  lipgloss.Style
	running lipgloss.Style
	queued  lipgloss.Style
	footer  lipgloss.Style
}

func defaultWatchStyles() watchStyles {
	return watchStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BE9FD")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
		failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
		running: lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C")),
		queued:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")),
		footer:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")),
	}
}

// wsEventMsg wraps an eventDTO delivered from the reader goroutine.
type wsEventMsg eventDTO

// wsClosedMsg signals the reader goroutine observed the stream end.
type wsClosedMsg struct{ err error }

func newWatchModel(jobID string) *watchModel {
	return &watchModel{
		jobID:    jobID,
		devices:  make(map[string]string),
		logLimit: 200,
		styles:   defaultWatchStyles(),
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m *watchModel) Init() tea.Cmd { return nil }

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	case wsEventMsg:
		m.applyEvent(eventDTO(msg))
		if msg.Type == "job_complete" {
			m.done = true
			return m, tea.Quit
		}
	case wsClosedMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m *watchModel) applyEvent(e eventDTO) {
	switch e.Type {
	case "job_status":
		m.jobStatus = e.Status
	case "device_status":
		if _, seen := m.devices[e.Device]; !seen {
			m.deviceOrder = append(m.deviceOrder, e.Device)
		}
		m.devices[e.Device] = e.Status
	case "log":
		line := fmt.Sprintf("[%s] %s", e.Device, e.Message)
		m.logTail = append(m.logTail, line)
		if len(m.logTail) > m.logLimit {
			m.logTail = m.logTail[len(m.logTail)-m.logLimit:]
		}
	case "job_complete":
		m.jobStatus = e.Status
	}
}

func (m *watchModel) View() string {
	out := m.styles.title.Render(fmt.Sprintf("job %s", m.jobID)) + "  "
	out += fmt.Sprintf("status=%s\n\n", m.jobStatus)

	out += m.progress.ViewAs(m.fractionDone()) + "\n\n"

	order := append([]string(nil), m.deviceOrder...)
	sort.Strings(order)

	for _, key := range order {
		out += m.renderDeviceLine(key) + "\n"
	}

	out += "\n" + m.styles.footer.Render("recent log lines:") + "\n"

	start := 0
	if len(m.logTail) > 10 {
		start = len(m.logTail) - 10
	}

	for _, line := range m.logTail[start:] {
		out += line + "\n"
	}

	out += "\n" + m.styles.footer.Render("q: quit watching (the run continues server-side)")

	return out
}

// fractionDone reports the share of known devices that reached a terminal
// status, feeding the bubbles/progress bar.
func (m *watchModel) fractionDone() float64 {
	if len(m.devices) == 0 {
		return 0
	}

	terminal := 0
	for _, status := range m.devices {
		switch status {
		case "success", "failed", "cancelled":
			terminal++
		}
	}

	return float64(terminal) / float64(len(m.devices))
}

func (m *watchModel) renderDeviceLine(key string) string {
	status := m.devices[key]

	styled := status
	switch status {
	case "success":
		styled = m.styles.success.Render(status)
	case "failed":
		styled = m.styles.failed.Render(status)
	case "running":
		styled = m.styles.running.Render(status)
	default:
		styled = m.styles.queued.Render(status)
	}

	return fmt.Sprintf("  %-24s %s", key, styled)
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var startIndex int

	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Live-watch a job's device progress via the event stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]

			model := newWatchModel(jobID)
			program := tea.NewProgram(model)

			conn, _, err := websocket.DefaultDialer.Dial(opts.client().wsURL(jobID, startIndex), http.Header{})
			if err != nil {
				return fmt.Errorf("connecting to event stream: %w", err)
			}
			defer conn.Close()

			go pumpEvents(conn, program)

			finalModel, err := program.Run()
			if err != nil {
				return err
			}

			final, _ := finalModel.(*watchModel)
			if final != nil && final.jobStatus != "" {
				os.Exit(exitCodeForStatus(final.jobStatus))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&startIndex, "start-index", 0, "event cursor to backfill from")

	return cmd
}

// pumpEvents reads JSON events off conn and forwards them to program until
// the socket closes, mirroring the teacher's tui.Bridge event-to-msg relay.
func pumpEvents(conn *websocket.Conn, program *tea.Program) {
	for {
		var e eventDTO

		if err := conn.ReadJSON(&e); err != nil {
			program.Send(wsClosedMsg{err: err})
			return
		}

		program.Send(wsEventMsg(e))

		if e.Type == "job_complete" {
			return
		}
	}
}
