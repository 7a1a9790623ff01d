// Package monitor is a terminal view of the daemon's event stream: the
// live transcript of each dictating session plus what the assistant says.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dictation/internal/ipc"
)

const (
	keyQuit   = "q"
	keyCtrlC  = "ctrl+c"
	keyToggle = "s"
	keyUndo   = "u"
	keyRead   = "r"

	reconnectDelay = 2 * time.Second
	maxLines       = 500
)

type lineKind int

const (
	lineUtterance lineKind = iota
	lineNotice
	lineSpoken
	lineError
)

type line struct {
	kind    lineKind
	session string
	text    string
	at      time.Time
}

type Model struct {
	socket  string
	session string

	client    *ipc.Client
	evClient  *ipc.Client
	connected bool
	connError string

	dictating map[string]bool
	targets   map[string]string
	mode      string

	lines []line

	width  int
	height int
}

// New watches session on the daemon at socket. Commands sent from the
// keyboard target session.
func New(socket, session string) Model {
	if session == "" {
		session = ipc.DefaultSession
	}
	return Model{
		socket:    socket,
		session:   session,
		dictating: make(map[string]bool),
		targets:   make(map[string]string),
	}
}

func (m Model) Init() tea.Cmd {
	return connectCmd(m.socket)
}

func connectCmd(socket string) tea.Cmd {
	return func() tea.Msg {
		client, err := ipc.Connect(socket)
		if err != nil {
			return ConnectErrorMsg{Err: err}
		}
		evClient, err := ipc.Connect(socket)
		if err != nil {
			client.Close()
			return ConnectErrorMsg{Err: err}
		}
		return ConnectedMsg{Client: client, EvClient: evClient}
	}
}

func subscribeCmd(evClient *ipc.Client) tea.Cmd {
	return func() tea.Msg {
		if err := evClient.Subscribe(); err != nil {
			return EventErrorMsg{Err: err}
		}
		return readEventCmd(evClient)()
	}
}

func readEventCmd(evClient *ipc.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := evClient.ReadEvent()
		if err != nil {
			return EventErrorMsg{Err: err}
		}
		return EventMsg{Event: ev}
	}
}

func sendCmd(client *ipc.Client, cmd ipc.Command) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(cmd)
		if err != nil {
			return EventErrorMsg{Err: err}
		}
		return ResponseMsg{Cmd: cmd.Cmd, Response: resp}
	}
}

func reconnectCmd() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectedMsg:
		m.client = msg.Client
		m.evClient = msg.EvClient
		m.connected = true
		m.connError = ""
		return m, tea.Batch(
			subscribeCmd(m.evClient),
			sendCmd(m.client, ipc.Command{Cmd: "status", Session: m.session}),
		)

	case ConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		return m, reconnectCmd()

	case ReconnectTickMsg:
		return m, connectCmd(m.socket)

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, readEventCmd(m.evClient)

	case EventErrorMsg:
		m.disconnect()
		m.connError = msg.Err.Error()
		return m, reconnectCmd()

	case ResponseMsg:
		m.handleResponse(msg)
		return m, nil
	}
	return m, nil
}

func (m *Model) disconnect() {
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.evClient != nil {
		m.evClient.Close()
		m.evClient = nil
	}
	m.connected = false
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyQuit, keyCtrlC:
		m.disconnect()
		return m, tea.Quit
	}
	if !m.connected || m.client == nil {
		return m, nil
	}

	switch msg.String() {
	case keyToggle:
		cmd := "start"
		if m.dictating[m.session] {
			cmd = "stop"
		}
		return m, sendCmd(m.client, ipc.Command{Cmd: cmd, Session: m.session})
	case keyUndo:
		return m, sendCmd(m.client, ipc.Command{Cmd: "undo", Session: m.session})
	case keyRead:
		return m, sendCmd(m.client, ipc.Command{Cmd: "read", Session: m.session})
	}
	return m, nil
}

func (m *Model) handleEvent(ev ipc.Event) {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Event {
	case ipc.EventStarted:
		m.dictating[ev.Session] = true
		m.targets[ev.Session] = ev.Name
		m.add(line{kind: lineNotice, session: ev.Session, text: "started " + ev.Name, at: at})
	case ipc.EventUtterance:
		m.add(line{kind: lineUtterance, session: ev.Session, text: ev.Text, at: at})
	case ipc.EventUndo:
		for i := len(m.lines) - 1; i >= 0; i-- {
			l := m.lines[i]
			if l.kind == lineUtterance && l.session == ev.Session && l.text == ev.Text {
				m.lines = append(m.lines[:i], m.lines[i+1:]...)
				break
			}
		}
	case ipc.EventStopped:
		m.dictating[ev.Session] = false
	case ipc.EventSaved:
		m.add(line{kind: lineNotice, session: ev.Session, text: "saved " + ev.Path, at: at})
	case ipc.EventMode:
		m.mode = ev.Mode
	case ipc.EventSpeak:
		m.add(line{kind: lineSpoken, session: ev.Session, text: ev.Text, at: at})
	}
}

func (m *Model) handleResponse(msg ResponseMsg) {
	resp := msg.Response
	if !resp.OK {
		m.add(line{kind: lineError, session: m.session, text: fmt.Sprintf("%s: %s", msg.Cmd, resp.Error), at: time.Now()})
		return
	}
	if resp.Dictating != nil {
		m.dictating[m.session] = *resp.Dictating
	}
	if resp.Target != "" && msg.Cmd != "read" {
		m.targets[m.session] = resp.Target
	}
	if msg.Cmd == "read" {
		m.add(line{kind: lineNotice, session: m.session, text: resp.Target + ": " + resp.Text, at: time.Now()})
	}
}

func (m *Model) add(l line) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder

	dot := idleDotStyle.Render("○")
	state := "idle"
	if m.dictating[m.session] {
		dot = dictatingDotStyle.Render("●")
		state = "dictating " + m.targets[m.session]
	}
	b.WriteString(titleStyle.Render("dictation") + " " + dot + " " + sessionStyle.Render(m.session) + " " + statusStyle.Render(state))
	if m.mode != "" {
		b.WriteString(statusStyle.Render("  listener: " + m.mode))
	}
	b.WriteString("\n")

	switch {
	case m.connError != "":
		b.WriteString(errorStyle.Render("disconnected: "+m.connError) + "\n")
	case !m.connected:
		b.WriteString(statusStyle.Render("connecting to "+m.socket+"...") + "\n")
	}

	width := m.width
	if width <= 0 {
		width = 80
	}
	b.WriteString(dividerStyle.Render(strings.Repeat("─", width)) + "\n")

	visible := m.lines
	if m.height > 5 && len(visible) > m.height-5 {
		visible = visible[len(visible)-(m.height-5):]
	}
	for _, l := range visible {
		b.WriteString(renderLine(l) + "\n")
	}

	b.WriteString(dividerStyle.Render(strings.Repeat("─", width)) + "\n")
	b.WriteString(footer())
	return b.String()
}

func renderLine(l line) string {
	ts := timestampStyle.Render(l.at.Format("15:04:05"))
	sess := sessionStyle.Render(l.session)
	switch l.kind {
	case lineNotice:
		return ts + " " + sess + " " + noticeStyle.Render(l.text)
	case lineSpoken:
		return ts + " " + sess + " " + spokenStyle.Render("» "+l.text)
	case lineError:
		return ts + " " + sess + " " + errorStyle.Render(l.text)
	default:
		return ts + " " + sess + " " + l.text
	}
}

func footer() string {
	keys := []struct{ key, desc string }{
		{keyToggle, "start/stop"},
		{keyUndo, "undo"},
		{keyRead, "read last"},
		{keyQuit, "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}
