// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/esslink/pkg/essproto"
	"github.com/Thermoquad/esslink/pkg/events"
	"github.com/Thermoquad/esslink/pkg/wifi"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const maxLogEntries = 100

//////////////////////////////////////////////////////////////
// Styles
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	disconnectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Padding(0, 1)
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// logEntry is one line in the recent events list
type logEntry struct {
	at      time.Time
	message string
	isError bool
}

// Implement list.Item interface
func (e logEntry) Title() string {
	if e.isError {
		return "✗ " + e.message
	}
	return e.message
}
func (e logEntry) Description() string { return e.at.Format("15:04:05") }
func (e logEntry) FilterValue() string { return e.message }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	conn *monitorConn

	status    *wifi.Status
	telemetry *essproto.StatusData
	lastEvent time.Time
	packets   uint64

	eventList list.Model
	entries   []list.Item

	width          int
	height         int
	connectionLost bool
	quitting       bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorEventMsg struct {
	event events.Event
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	url string
}

type sendResultMsg struct {
	action string
	err    error
}

type monitorTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(conn *monitorConn) monitorModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	l := list.New([]list.Item{}, delegate, 60, 12)
	l.Title = "Recent Events"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return monitorModel{conn: conn, eventList: l}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// sendControl issues a control request off the UI goroutine
func (m monitorModel) sendControl(ctl events.Control) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{action: ctl.Action, err: m.conn.send(ctl)}
	}
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.sendControl(events.Control{Action: events.ActionRestart})
		case "x":
			return m, m.sendControl(events.Control{Action: events.ActionStop})
		case "s":
			return m, m.sendControl(m.roleControl(wifi.RoleStation))
		case "a":
			return m, m.sendControl(m.roleControl(wifi.RoleAccessPoint))
		}
		var cmd tea.Cmd
		m.eventList, cmd = m.eventList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.eventList.SetSize(max(msg.Width-6, 20), max(msg.Height-20, 6))
		return m, nil

	case monitorTickMsg:
		return m, monitorTickCmd()

	case monitorEventMsg:
		m.handleEvent(msg.event)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.action, msg.err), true)
		}
		return m, nil

	case connectionLostMsg:
		m.connectionLost = true
		reason := "connection lost, reconnecting"
		if msg.err != nil {
			reason = fmt.Sprintf("connection lost (%v), reconnecting", msg.err)
		}
		m.addLogEntry(reason, true)
		return m, nil

	case reconnectedMsg:
		m.connectionLost = false
		m.addLogEntry("reconnected to "+msg.url, false)
		return m, nil
	}
	return m, nil
}

// roleControl starts role when the link is stopped and switches otherwise
func (m monitorModel) roleControl(role wifi.Role) events.Control {
	action := events.ActionSwitch
	if m.status != nil && !m.status.Running {
		action = events.ActionStart
	}
	return events.Control{Action: action, Role: role.String()}
}

func (m *monitorModel) handleEvent(ev events.Event) {
	m.lastEvent = ev.Timestamp
	switch ev.Type {
	case events.EventStatus:
		var s wifi.Status
		if err := ev.Decode(&s); err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		if m.status == nil || m.status.Phase != s.Phase || m.status.Connected() != s.Connected() {
			m.addLogEntry(fmt.Sprintf("%s %s, connected=%v", s.Role, s.Phase, s.Connected()), s.LastError != wifi.Ok)
		}
		m.status = &s
	case events.EventTelemetry:
		var t essproto.StatusData
		if err := ev.Decode(&t); err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		m.telemetry = &t
	case events.EventPacket:
		var p events.PacketInfo
		if err := ev.Decode(&p); err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		m.packets++
		if p.Type != essproto.MsgStatusData {
			m.addLogEntry(fmt.Sprintf("%s %s", p.Name, p.Summary), p.Type >= essproto.MsgErrorInvalidCmd)
		}
	case events.EventControl:
		var r events.ControlResult
		if err := ev.Decode(&r); err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		if r.OK {
			m.addLogEntry(r.Action+" accepted", false)
		} else {
			m.addLogEntry(fmt.Sprintf("%s rejected: %s", r.Action, r.Error), true)
		}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.entries = append([]list.Item{logEntry{at: time.Now(), message: message, isError: isError}}, m.entries...)
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[:maxLogEntries]
	}
	m.eventList.SetItems(m.entries)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("ESSLINK - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(m.conn.url))
	if m.connectionLost {
		s.WriteString("  ")
		s.WriteString(disconnectStyle.Render("DISCONNECTED"))
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.statusView()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.telemetryView()))
	s.WriteString("\n")
	s.WriteString(m.eventList.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("r restart • s station • a access point • x stop • q quit"))
	return s.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func (m monitorModel) statusView() string {
	if m.status == nil {
		return warningStyle.Render("⏳ Waiting for status...")
	}
	st := m.status
	var b strings.Builder

	state := valueStyle.Render("connected")
	switch {
	case !st.Running:
		state = headerStyle.Render("stopped")
	case !st.Connected():
		state = warningStyle.Render("connecting")
	}
	b.WriteString(row("Link:", state))
	b.WriteString(row("Role:", valueStyle.Render(st.Role.String())))
	b.WriteString(row("Phase:", st.Phase))
	if st.IP != "" {
		b.WriteString(row("Address:", st.IP))
	}
	if st.Role == wifi.RoleAccessPoint {
		b.WriteString(row("Server:", yesNo(st.APReady)))
		b.WriteString(row("Peer:", yesNo(st.PeerConnected)))
	} else {
		b.WriteString(row("Errors:", fmt.Sprintf("scan %d  join %d  check %d",
			st.ScanErrors, st.JoinErrors, st.NetCheckErrors)))
	}
	lastErr := valueStyle.Render(st.LastError.String())
	if st.LastError != wifi.Ok {
		lastErr = errorStyle.Render(st.LastError.String())
	}
	b.WriteString(row("Last error:", lastErr))
	if st.RestartRequested {
		b.WriteString(warningStyle.Render("restart pending"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m monitorModel) telemetryView() string {
	if m.telemetry == nil {
		return headerStyle.Render("No controller telemetry yet")
	}
	t := m.telemetry
	var b strings.Builder
	b.WriteString(row("Charge:", valueStyle.Render(fmt.Sprintf("%.1f%%", t.SoC))))
	b.WriteString(row("Pack:", fmt.Sprintf("%.2f V  %+.2f A", t.Voltage, t.Current)))
	b.WriteString(row("Temperature:", fmt.Sprintf("%.1f°C", t.Temperature)))
	b.WriteString(row("Mode:", essproto.FormatMode(t.Mode)))
	b.WriteString(row("Uptime:", formatUptime(t.UptimeMs)))
	b.WriteString(row("Packets:", fmt.Sprintf("%d", m.packets)))
	return strings.TrimRight(b.String(), "\n")
}

func yesNo(v bool) string {
	if v {
		return valueStyle.Render("yes")
	}
	return warningStyle.Render("no")
}

// formatUptime formats uptime in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	var parts []string
	add := func(n uint64, unit string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+unit)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}
