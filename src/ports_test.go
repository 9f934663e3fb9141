package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial/enumerator"
)

func TestDescribePorts(t *testing.T) {
	t.Parallel()

	templates, err := loadTemplatesFromRaw(boardTemplatesRaw)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	details := []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1a86", PID: "7523"},
		{Name: "/dev/ttyS0"},
		nil,
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2e8a", PID: "0005", SerialNumber: "E660", Product: "Board in FS mode"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "dead", PID: "beef"},
	}
	want := []PortInfo{
		{Device: "/dev/ttyACM0", Description: "Board in FS mode", HWID: "USB VID:PID=2E8A:0005 SER=E660"},
		{Device: "/dev/ttyS0", Description: "n/a", HWID: "n/a"},
		{Device: "/dev/ttyUSB0", Description: "n/a", HWID: "USB VID:PID=DEAD:BEEF"},
		{Device: "/dev/ttyUSB1", Description: "QinHeng CH340 serial converter", HWID: "USB VID:PID=1A86:7523"},
	}
	if diff := cmp.Diff(want, describePorts(details, templates)); diff != "" {
		t.Fatalf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestFindTemplateIgnoresCase(t *testing.T) {
	t.Parallel()

	templates := []BoardTemplate{{VendorIDs: []string{"10c4"}, ProductIDs: []string{"ea60"}, Name: "CP210x"}}
	if got := findTemplate(templates, "10C4", "EA60"); got == nil || got.Name != "CP210x" {
		t.Fatalf("findTemplate = %v", got)
	}
	if got := findTemplate(templates, "10c4", "0000"); got != nil {
		t.Fatalf("unexpected template %v", got)
	}
}

func TestCooldownCachesPortList(t *testing.T) {
	t.Parallel()

	calls := 0
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cd := newCooldown(time.Second, func() ([]PortInfo, error) {
		calls++
		return []PortInfo{{Device: "COM3"}}, nil
	})
	cd.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := cd.Ports(); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	now = now.Add(2 * time.Second)
	cd.Ports()
	if calls != 2 {
		t.Fatalf("calls after cooldown = %d, want 2", calls)
	}
	cd.unlock()
	cd.Ports()
	if calls != 3 {
		t.Fatalf("calls after unlock = %d, want 3", calls)
	}
}

func TestCooldownDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	fail := errors.New("enumeration failed")
	calls := 0
	cd := newCooldown(time.Minute, func() ([]PortInfo, error) {
		calls++
		return nil, fail
	})
	for i := 0; i < 2; i++ {
		if _, err := cd.Ports(); !errors.Is(err, fail) {
			t.Fatalf("error = %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestLoadPymakr(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pymakr.conf")
	if err := os.WriteFile(path, []byte(`{"address": "192.168.4.1", "username": "", "name": "Weather station"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	boards := NewBoardManager()
	if err := boards.LoadPymakr(filepath.Join(t.TempDir(), "missing.conf")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := boards.LoadPymakr(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []BoardProfile{{
		ID:       "current",
		Name:     "Weather station",
		Address:  "192.168.4.1",
		Username: "micro",
		Password: "python",
		MainFile: "main.py",
		Type:     WifiConnection,
	}}
	if diff := cmp.Diff(want, boards.Boards()); diff != "" {
		t.Fatalf("boards mismatch (-want +got):\n%s", diff)
	}
}
