package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/voxel8/interlockd/internal/safety"
)

// Compile-time checks.
var (
	_ safety.Machine  = (*Link)(nil)
	_ safety.Notifier = (*Link)(nil)
	_ safety.Machine  = (*FakeMachine)(nil)
	_ safety.Notifier = (*FakeMachine)(nil)
)

type fakePort struct {
	buf    bytes.Buffer
	closed bool
	err    error
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.buf.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.buf.Write(b)
}

func (p *fakePort) String() string {
	return p.buf.String()
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestLinkPrimitives(t *testing.T) {
	tests := []struct {
		name string
		call func(l *Link) error
		want string
	}{
		{"quick stop", (*Link).QuickStop, "M410\n"},
		{"heaters", (*Link).DisableAllHeaters, "M104 S0\nM140 S0\n"},
		{"steppers", (*Link).DisableAllSteppers, "M18\n"},
		{"kill", func(l *Link) error { return l.Kill("Cartridge Removed") }, "M112 ; Cartridge Removed\n"},
		{"kill no message", func(l *Link) error { return l.Kill("") }, "M112\n"},
		{"notify", func(l *Link) error { return l.Notify(safety.TokenPause) }, "M118 // action:pause\n"},
		{"notify multiline", func(l *Link) error { return l.Notify("a\nb") }, "M118 a b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{}
			l := NewLink(port)
			if err := tt.call(l); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := port.String(); got != tt.want {
				t.Errorf("wrote %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinkWriteError(t *testing.T) {
	sim := errors.New("port gone")
	l := NewLink(&fakePort{err: sim})
	if err := l.QuickStop(); !errors.Is(err, sim) {
		t.Errorf("expected wrapped error, got %v", err)
	}
	if err := l.DisableAllHeaters(); !errors.Is(err, sim) {
		t.Errorf("expected joined error, got %v", err)
	}
}

func TestLinkClose(t *testing.T) {
	port := &fakePort{}
	l := NewLink(port)
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !port.closed {
		t.Error("port not closed")
	}
}

func TestLinkDrivesDispatcher(t *testing.T) {
	port := &fakePort{}
	l := NewLink(port)
	d := safety.NewDispatcher(l, l, safety.NewFlags(), safety.DefaultErrorInterval)

	d.ReportFault(safety.Fault{
		Source:   safety.SourceBed,
		Kind:     safety.KindBedRemoved,
		Severity: safety.SeverityInterlock,
		Host:     safety.HostPause,
		Message:  "Heated Bed Removed!",
	}, 0)

	want := "M410\nM104 S0\nM140 S0\nM18\nM118 Heated Bed Removed!\nM118 // action:pause\n"
	if got := port.String(); got != want {
		t.Errorf("wrote %q, want %q", got, want)
	}
}

func TestFakeMachine(t *testing.T) {
	f := NewFakeMachine()
	f.QuickStop()
	f.QuickStop()
	f.Kill("x")
	f.Notify("hello")

	if f.Count(CmdQuickStop) != 2 || f.Count(CmdEmergencyStop) != 1 {
		t.Errorf("calls: %v", f.Calls)
	}
	if lines := f.GetLines(); len(lines) != 1 || lines[0] != "hello" {
		t.Errorf("lines: %v", lines)
	}
}
