package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseIntPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want *int
	}{
		{"115200", intPtr(115200)},
		{"  9600abc", intPtr(9600)},
		{"+7", intPtr(7)},
		{"-12", intPtr(-12)},
		{"0x1F", intPtr(31)},
		{"1e3", intPtr(1)},
		{"0x", nil},
		{"abc", nil},
		{"", nil},
		{"-", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, parseIntPrefix(tt.in)); diff != "" {
			t.Errorf("parseIntPrefix(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestEncodeURIComponent(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"a b(c)!":                     "a%20b(c)!",
		"/tmp/x/downloaded_files.zip": "%2Ftmp%2Fx%2Fdownloaded_files.zip",
		"файл":                        "%D1%84%D0%B0%D0%B9%D0%BB",
		"a&b=c?d#e":                   "a%26b%3Dc%3Fd%23e",
	}
	for in, want := range tests {
		if got := encodeURIComponent(in); got != want {
			t.Errorf("encodeURIComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConnectionFormSelect(t *testing.T) {
	t.Parallel()

	form := NewConnectionForm()
	if !form.IsActive(WifiConnection) || form.IsActive(SerialConnection) {
		t.Fatalf("default panel = %s", form.Active())
	}
	form.Select(SerialConnection)
	if !form.IsActive(SerialConnection) || form.IsActive(WifiConnection) {
		t.Fatalf("after select panel = %s", form.Active())
	}
	form.Select("usb")
	if form.Active() != SerialConnection {
		t.Fatalf("unknown type changed panel to %s", form.Active())
	}
}

func TestConnectionFormJSON(t *testing.T) {
	t.Parallel()

	form := NewConnectionForm()
	data, err := json.Marshal(form.Connection())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"type":"wifi","address":"","username":"micro","password":"python"}`; got != want {
		t.Errorf("wifi form = %s, want %s", got, want)
	}

	form.Select(SerialConnection)
	form.Baudrate = "fast"
	data, err = json.Marshal(form.Connection())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"type":"serial","port":"","baudrate":null}`; got != want {
		t.Errorf("serial form = %s, want %s", got, want)
	}
}

func TestNewClientURLs(t *testing.T) {
	t.Parallel()

	client, err := NewClient("https://boards.local/manager/", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := client.replURL(), "wss://boards.local/manager/repl"; got != want {
		t.Errorf("repl url = %s, want %s", got, want)
	}
	if got, want := client.DownloadURL("/tmp/a b/downloaded_files.zip"),
		"https://boards.local/manager/download?path=%2Ftmp%2Fa%20b%2Fdownloaded_files.zip"; got != want {
		t.Errorf("download url = %s, want %s", got, want)
	}
	if _, err := NewClient("ftp://boards.local", "", ""); err == nil {
		t.Error("ftp scheme accepted")
	}
}

func TestClientUploadWithoutFilesMakesNoRequest(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}
	status := client.Upload(context.Background(), nil)
	if diff := cmp.Diff(Status{OK: false, Text: "No files selected!"}, status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	if n := requests.Load(); n != 0 {
		t.Fatalf("requests = %d, want 0", n)
	}
}

func TestClientConnectOpensConsole(t *testing.T) {
	board := NewFakeBoard("fakecom-client")
	_, ts := newTestServer(t, fakeOpener(board), nil)

	client, err := NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Console.Close()
	client.Form.Select(SerialConnection)
	client.Form.Port = board.portName

	status := client.Connect(context.Background())
	if diff := cmp.Diff(Status{OK: true, Text: "Serial connection successful"}, status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	waitOutput(t, client.Console, "MicroPython (fake board)")
	if !strings.HasPrefix(client.Console.Output(), connectedNotice) {
		t.Fatalf("output = %q", client.Console.Output())
	}

	if err := client.Console.Send("print(1)"); err != nil {
		t.Fatal(err)
	}
	waitOutput(t, client.Console, "print(1)\r\n>>> ")
}

func TestClientFailedConnectKeepsConsoleClosed(t *testing.T) {
	_, ts := newTestServer(t, fakeOpener(), nil)

	client, err := NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}
	client.Form.Select(SerialConnection)
	client.Form.Port = "COM42"

	status := client.Connect(context.Background())
	if diff := cmp.Diff(Status{OK: false, Text: "could not open port COM42"}, status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	if client.Console.State() != Disconnected || client.Console.Output() != "" {
		t.Fatalf("console %v with output %q", client.Console.State(), client.Console.Output())
	}
}

func TestClientUploadListDownload(t *testing.T) {
	board := NewFakeBoard("fakecom-files")
	_, ts := newTestServer(t, fakeOpener(board), nil)

	dir := t.TempDir()
	files := map[string]string{
		"main.py": "print('hello')\n",
		"boot.py": "import machine\n",
	}
	var paths []string
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}

	client, err := NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}
	client.Form.Select(SerialConnection)
	client.Form.Port = board.portName
	ctx := context.Background()

	status := client.Upload(ctx, paths)
	if !status.OK || !strings.HasPrefix(status.Text, "Uploaded 2 files") {
		t.Fatalf("upload = %+v", status)
	}

	names, err := client.Files(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"boot.py", "main.py"}, names); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}

	dest := filepath.Join(dir, "out.zip")
	status = client.Download(ctx, names, dest)
	if diff := cmp.Diff(Status{OK: true, Text: "Download successful!"}, status); diff != "" {
		t.Fatalf("download mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(files, readZip(t, data)); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestClientBasicAuth(t *testing.T) {
	hash, err := hashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	board := NewFakeBoard("fakecom-auth")
	_, ts := newTestServer(t, fakeOpener(board), newBasicAuth("admin", hash))
	conn := NewSerialConnection(board.portName, nil)

	client, err := NewClient(ts.URL, "admin", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if status := client.TestConnection(context.Background(), conn); !status.OK {
		t.Fatalf("authorized test = %+v", status)
	}

	intruder, err := NewClient(ts.URL, "admin", "guess")
	if err != nil {
		t.Fatal(err)
	}
	status := intruder.TestConnection(context.Background(), conn)
	if status.OK || !strings.Contains(status.Text, "401") {
		t.Fatalf("unauthorized test = %+v", status)
	}
}

func TestClientConnectReportsConsoleFailure(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/test-connection" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, Result{Success: true, Message: "Serial connection successful"})
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}
	client.Form.Select(SerialConnection)
	client.Form.Port = "COM3"

	status := client.Connect(context.Background())
	if status.OK || !strings.Contains(status.Text, "REPL connection failed") {
		t.Fatalf("status = %+v", status)
	}
	if client.Console.State() != Disconnected {
		t.Fatalf("console state = %v", client.Console.State())
	}
}
