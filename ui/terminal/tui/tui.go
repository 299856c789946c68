// Package tui shows a running client: the peers in the session, the notes
// being held and a small piano played from the keyboard.
package tui

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/client"
)

const (
	width = 96

	velocity = 100
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}).
			Background(lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#353533"})

	statusStyle = lipgloss.NewStyle().
			Inherit(statusBarStyle).
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#FF5F87")).
			Padding(0, 1).
			MarginRight(1)

	statusText = lipgloss.NewStyle().Inherit(statusBarStyle)

	statsText = lipgloss.NewStyle().Foreground(subtle).PaddingTop(1)

	helpMenu = lipgloss.NewStyle().Align(lipgloss.Center).PaddingTop(1)

	docStyle = lipgloss.NewStyle().Padding(1, 2, 1, 2)
)

type statusMsg client.Status

// closedMsg reports that the client stopped publishing.
type closedMsg struct{}

func waitStatus(c <-chan client.Status) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-c
		if !ok {
			return closedMsg{}
		}
		return statusMsg(s)
	}
}

type Model struct {
	keys  keyMap
	help  help.Model
	peers table.Model

	statusC <-chan client.Status
	notes   chan<- miditip.MidiEvent

	status  client.Status
	joined  bool
	octave  int
	active  map[uint8]struct{} // notes held from the keyboard
	dropped int
}

// New returns a model fed by status. Notes played on the keyboard go to
// notes, which may be nil for a view-only display.
func New(status <-chan client.Status, notes chan<- miditip.MidiEvent) Model {
	return Model{
		keys:    keys,
		help:    help.New(),
		peers:   makePeersTable(),
		statusC: status,
		notes:   notes,
		active:  make(map[uint8]struct{}),
	}
}

func (m Model) Init() tea.Cmd {
	return waitStatus(m.statusC)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.peers.SetWidth(msg.Width - 10)
	case statusMsg:
		m.status = client.Status(msg)
		m.joined = true
		m.peers.SetRows(peerRows(m.status))
		cmds = append(cmds, waitStatus(m.statusC))
	case closedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.releaseAll()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.OctaveDown):
			if m.octave > minOctave {
				m.octave--
			}
		case key.Matches(msg, m.keys.OctaveUp):
			if m.octave < maxOctave {
				m.octave++
			}
		case key.Matches(msg, m.keys.Release):
			m.releaseAll()
		case key.Matches(msg, m.keys.Play):
			if n, ok := noteFor(msg.String(), m.octave); ok {
				m.toggle(n)
			}
		}
	}

	var cmd tea.Cmd
	m.peers, cmd = m.peers.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// toggle starts note n, or stops it if it is already held. Keyboards
// report no key release, so every note latches.
func (m *Model) toggle(n uint8) {
	if _, ok := m.active[n]; ok {
		delete(m.active, n)
		m.play(miditip.MidiEvent{Status: 0x80, Data1: n})
		return
	}

	m.active[n] = struct{}{}
	m.play(miditip.MidiEvent{Status: 0x90, Data1: n, Data2: velocity})
}

func (m *Model) releaseAll() {
	for n := range m.active {
		delete(m.active, n)
		m.play(miditip.MidiEvent{Status: 0x80, Data1: n})
	}
}

// play never blocks the UI; a full input queue drops the note.
func (m *Model) play(e miditip.MidiEvent) {
	if m.notes == nil {
		return
	}

	select {
	case m.notes <- e:
	default:
		m.dropped++
	}
}

// held merges the notes sounding anywhere in the session with the local ones.
func (m Model) held() map[uint8]struct{} {
	held := make(map[uint8]struct{}, len(m.active)+len(m.status.Held))
	for n := range m.active {
		held[n] = struct{}{}
	}
	for _, e := range m.status.Held {
		held[e.Data1] = struct{}{}
	}
	return held
}

func (m Model) View() string {
	physicalWidth, _, _ := term.GetSize(int(os.Stdout.Fd()))
	doc := strings.Builder{}

	// Status bar
	{
		w := lipgloss.Width

		status := "Joining..."
		if m.joined {
			status = fmt.Sprintf("peer %d, %d others, %d held, %d pending",
				m.status.PeerID, len(m.status.Peers), len(m.status.Held), m.status.Pending)
		}

		statusKey := statusStyle.Render("MIDITIP")
		statusVal := statusText.Copy().
			Width(width - w(statusKey)).
			Render(status)

		bar := lipgloss.JoinHorizontal(lipgloss.Top, statusKey, statusVal)
		doc.WriteString(statusBarStyle.Width(width).Render(bar) + "\n\n")
	}

	// Peers
	{
		if len(m.status.Peers) > 0 {
			doc.WriteString(baseStyle.Render(m.peers.View()) + "\n\n")
		} else {
			doc.WriteString("No other peers yet.\n\n")
		}
	}

	doc.WriteString(renderPiano(m.octave, m.held()))

	// Counters
	{
		s := m.status.Stats
		line := fmt.Sprintf("local %d  received %d  ignored %d  malformed %d  snapshots %d  corrections %d",
			s.Local, s.Received, s.Ignored, s.Malformed, s.Snapshots, s.Corrections)
		if m.dropped > 0 {
			line += "  dropped " + strconv.Itoa(m.dropped)
		}
		doc.WriteString("\n" + statsText.Render(line))
	}

	doc.WriteString("\n" + helpMenu.Render(m.help.View(m.keys)))

	if physicalWidth > 0 {
		docStyle = docStyle.MaxWidth(physicalWidth)
	}

	return docStyle.Render(doc.String())
}

func makePeersTable() table.Model {
	columns := []table.Column{
		{Title: "Peer", Width: 6},
		{Title: "Address", Width: 24},
		{Title: "Held", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(7),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Bold(false)
	t.SetStyles(s)

	return t
}

func peerRows(s client.Status) []table.Row {
	byPeer := make(map[uint8][]string)
	for _, e := range s.Held {
		byPeer[e.PeerID] = append(byPeer[e.PeerID], strconv.Itoa(int(e.Data1)))
	}

	rows := make([]table.Row, 0, len(s.Peers))
	for _, p := range s.Peers {
		rows = append(rows, table.Row{
			strconv.Itoa(int(p.ID)),
			p.Addr.String(),
			strings.Join(byPeer[p.ID], " "),
		})
	}
	return rows
}

// Run shows the status published by a client until the user quits, the
// status channel is closed or ctx is done.
func Run(ctx context.Context, status <-chan client.Status, notes chan<- miditip.MidiEvent) error {
	p := tea.NewProgram(New(status, notes), tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			p.Send(tea.Quit())
		case <-done:
		}
	}()

	return p.Start()
}
