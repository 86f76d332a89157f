package ui

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/localota/internal/discovery"
)

// ErrPickCancelled is returned when the operator quits the picker.
var ErrPickCancelled = errors.New("device selection cancelled")

type pickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Manual key.Binding
	Quit   key.Binding
}

func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Manual, k.Quit}
}

func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Enter}, {k.Manual, k.Quit}}
}

type manualKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func (k manualKeyMap) ShortHelp() []key.Binding { return []key.Binding{k.Confirm, k.Cancel} }

func (k manualKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

// deviceItem wraps a discovered device for bubbles/list.
type deviceItem struct {
	device *discovery.Device
}

func (d deviceItem) FilterValue() string {
	return d.device.Name + " " + d.device.IP + " " + d.device.Hostname
}

func (d deviceItem) Title() string {
	return d.device.Name
}

func (d deviceItem) Description() string {
	desc := d.device.Address()
	if d.device.Hostname != "" && d.device.Hostname != d.device.IP {
		desc += " • " + strings.TrimSuffix(d.device.Hostname, ".")
	}
	if v := d.device.GetMetadata("version"); v != "" {
		desc += " • firmware " + v
	}
	return desc
}

// PickerModel lets the operator choose one of several discovered devices
// or type an address by hand.
type PickerModel struct {
	List       list.Model
	Input      textinput.Model
	ManualMode bool

	Help       help.Model
	Keys       pickerKeyMap
	ManualKeys manualKeyMap

	chosen    *discovery.Device
	cancelled bool
}

// NewPickerModel builds a picker over devices.
func NewPickerModel(devices []*discovery.Device) PickerModel {
	items := make([]list.Item, len(devices))
	for i, d := range devices {
		items[i] = deviceItem{device: d}
	}

	width, height := GetTerminalSize()
	l := list.New(items, list.NewDefaultDelegate(), clampWidth(width), max(6, min(height-4, 4+3*len(items))))
	l.Title = "Discovered devices"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = HeaderTitleStyle

	in := textinput.New()
	in.Placeholder = "192.168.4.1"
	in.CharLimit = 64
	in.Width = 30

	return PickerModel{
		List:  l,
		Input: in,
		Help:  help.New(),
		Keys: pickerKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "select")),
			Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "enter address")),
			Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		ManualKeys: manualKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		},
	}
}

// Init implements tea.Model
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.List.SetWidth(clampWidth(msg.Width))
		return m, nil
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManual(msg)
		}
		switch {
		case key.Matches(msg, m.Keys.Quit):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Enter):
			if item, ok := m.List.SelectedItem().(deviceItem); ok {
				m.chosen = item.device
				return m, tea.Quit
			}
			return m, nil
		case key.Matches(msg, m.Keys.Manual):
			m.ManualMode = true
			m.Input.SetValue("")
			return m, m.Input.Focus()
		}
	}

	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

func (m PickerModel) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.Input.Blur()
		return m, nil
	case key.Matches(msg, m.ManualKeys.Confirm):
		value := strings.TrimSpace(m.Input.Value())
		if value == "" {
			return m, nil
		}
		m.chosen = manualDevice(value)
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// manualDevice turns a typed host or host:port into a device.
func manualDevice(value string) *discovery.Device {
	d := &discovery.Device{
		Name:         "manual",
		Hostname:     value,
		IP:           strings.Trim(value, "[]"),
		Port:         discovery.DefaultPort,
		DiscoveredAt: time.Now(),
	}
	if host, port, err := net.SplitHostPort(value); err == nil {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			d.IP, d.Port = host, n
		}
	}
	return d
}

// View implements tea.Model
func (m PickerModel) View() string {
	if m.chosen != nil || m.cancelled {
		return ""
	}
	if m.ManualMode {
		return fmt.Sprintf("\n%s\n\n  Address: %s\n\n%s\n",
			HeaderTitleStyle.Render("Enter the device address"),
			m.Input.View(),
			m.Help.View(m.ManualKeys))
	}
	return "\n" + m.List.View() + "\n" + m.Help.View(m.Keys) + "\n"
}

// Chosen returns the selected device, nil if none was picked.
func (m PickerModel) Chosen() *discovery.Device {
	return m.chosen
}

// PickDevice runs the picker on the terminal.
func PickDevice(devices []*discovery.Device) (*discovery.Device, error) {
	if !IsTerminal() {
		return nil, ErrNotTerminal
	}
	final, err := tea.NewProgram(NewPickerModel(devices), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return nil, fmt.Errorf("device picker failed: %w", err)
	}
	m := final.(PickerModel)
	if m.chosen == nil {
		return nil, ErrPickCancelled
	}
	return m.chosen, nil
}
