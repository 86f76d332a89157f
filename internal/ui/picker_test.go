package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/localota/internal/discovery"
)

func pickerDevices() []*discovery.Device {
	return []*discovery.Device{
		{Name: "SmartShabat-0a1b", Hostname: "SmartShabat-0a1b.local.", IP: "10.0.0.11", Port: 80},
		{Name: "SmartShabat-2c3d", Hostname: "SmartShabat-2c3d.local.", IP: "10.0.0.12", Port: 8080},
	}
}

func press(m PickerModel, msgs ...tea.Msg) PickerModel {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(PickerModel)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPickerSelectsHighlightedDevice(t *testing.T) {
	m := press(NewPickerModel(pickerDevices()),
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	got := m.Chosen()
	if got == nil {
		t.Fatal("expected a device to be chosen")
	}
	if got.Address() != "10.0.0.12:8080" {
		t.Errorf("chosen address = %q, want 10.0.0.12:8080", got.Address())
	}
	if m.View() != "" {
		t.Error("view should be empty once a device is chosen")
	}
}

func TestPickerQuit(t *testing.T) {
	m := press(NewPickerModel(pickerDevices()), runes("q"))
	if m.Chosen() != nil {
		t.Error("quit should not choose a device")
	}
	if !m.cancelled {
		t.Error("quit should mark the picker cancelled")
	}
}

func TestPickerManualEntry(t *testing.T) {
	m := press(NewPickerModel(pickerDevices()), runes("m"))
	if !m.ManualMode {
		t.Fatal("m should switch to manual entry")
	}

	// Empty input is ignored.
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Chosen() != nil {
		t.Fatal("empty manual entry should not choose a device")
	}

	m = press(m, runes("192.168.4.1:81"), tea.KeyMsg{Type: tea.KeyEnter})
	got := m.Chosen()
	if got == nil {
		t.Fatal("expected manual device")
	}
	if got.Address() != "192.168.4.1:81" {
		t.Errorf("manual address = %q", got.Address())
	}
}

func TestPickerManualCancel(t *testing.T) {
	m := press(NewPickerModel(pickerDevices()), runes("m"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.ManualMode {
		t.Error("esc should leave manual entry")
	}
	if m.cancelled {
		t.Error("esc in manual entry should not cancel the picker")
	}
}

func TestManualDevice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.4.1", "192.168.4.1"},
		{"10.0.0.5:8080", "10.0.0.5:8080"},
		{"[fe80::1]:81", "[fe80::1]:81"},
		{"smartshabat.lan", "smartshabat.lan"},
	}
	for _, tt := range tests {
		if got := manualDevice(tt.in).Address(); got != tt.want {
			t.Errorf("manualDevice(%q).Address() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeviceItemDescription(t *testing.T) {
	d := &discovery.Device{
		Name:     "SmartShabat-0a1b",
		Hostname: "SmartShabat-0a1b.local.",
		IP:       "10.0.0.11",
		Port:     80,
		Metadata: map[string]string{"version": "1712345678"},
	}
	got := deviceItem{device: d}.Description()
	want := "10.0.0.11 • SmartShabat-0a1b.local • firmware 1712345678"
	if got != want {
		t.Errorf("Description() = %q, want %q", got, want)
	}

	d.Metadata = nil
	if got := (deviceItem{device: d}).Description(); strings.Contains(got, "firmware") {
		t.Errorf("Description() without TXT version = %q", got)
	}
}
