package main

import (
	"bufio"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// команды telnet
const (
	telnetWILL = 251
	telnetWONT = 252
	telnetDO   = 253
	telnetDONT = 254
	telnetIAC  = 255

	// TERMINAL-TYPE и LINEMODE
	optionTerminalType = 24
	optionLinemode     = 34
)

func newTestTelnet(t *testing.T) (*telnetConn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	conn, err := newTelnetConn(client)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		server.Close()
	})
	return conn, server
}

func TestTelnetRefusesOptions(t *testing.T) {
	t.Parallel()

	conn, server := newTestTelnet(t)
	replies := make(chan []byte, 1)
	go func() {
		server.Write([]byte{telnetIAC, telnetDO, optionTerminalType, telnetIAC, telnetWILL, optionLinemode, '>', '>', '>'})
		got := make([]byte, 6)
		io.ReadFull(server, got)
		replies <- got
	}()

	conn.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != ">>>" {
		t.Errorf("data = %q, want >>>", got)
	}
	want := []byte{telnetIAC, telnetWONT, optionTerminalType, telnetIAC, telnetDONT, optionLinemode}
	select {
	case got := <-replies:
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("replies mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Fatal("no negotiation replies")
	}
}

func TestTelnetReadEmptyBuffer(t *testing.T) {
	t.Parallel()

	conn, _ := newTestTelnet(t)
	result := make(chan error, 1)
	go func() {
		_, err := conn.Read(nil)
		result <- err
	}()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("read = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("read of an empty buffer blocked")
	}
}

func TestTelnetWriteEscapesIAC(t *testing.T) {
	t.Parallel()

	conn, server := newTestTelnet(t)
	written := make(chan int, 1)
	go func() {
		n, _ := conn.Write([]byte{1, telnetIAC, 2})
		written <- n
	}()
	got := make([]byte, 4)
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]byte{1, telnetIAC, telnetIAC, 2}, got); diff != "" {
		t.Fatalf("written mismatch (-want +got):\n%s", diff)
	}
	if n := <-written; n != 3 {
		t.Fatalf("write = %d, want 3", n)
	}
}

// плата, которая спрашивает логин и пароль; answer - ответ на пароль
func serveTelnetLogin(t *testing.T, server net.Conn, answer string) (user, password chan string) {
	t.Helper()
	user = make(chan string, 1)
	password = make(chan string, 1)
	go func() {
		r := bufio.NewReader(server)
		server.Write(append([]byte{telnetIAC, telnetDO, optionTerminalType}, "MicroPython\r\nLogin as: "...))
		negotiation := make([]byte, 3)
		if _, err := io.ReadFull(r, negotiation); err != nil {
			return
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		user <- line
		server.Write([]byte("Password: "))
		line, err = r.ReadString('\n')
		if err != nil {
			return
		}
		password <- line
		server.Write([]byte(answer))
	}()
	return user, password
}

func TestTelnetLogin(t *testing.T) {
	t.Parallel()

	conn, server := newTestTelnet(t)
	user, password := serveTelnetLogin(t, server, "\r\nLogin succeeded!\r\n>>> ")
	if err := conn.login("micro", "python", time.Second); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := <-user; got != "micro\r\n" {
		t.Errorf("user = %q", got)
	}
	if got := <-password; got != "python\r\n" {
		t.Errorf("password = %q", got)
	}
}

func TestTelnetLoginInvalid(t *testing.T) {
	t.Parallel()

	conn, server := newTestTelnet(t)
	serveTelnetLogin(t, server, "\r\nInvalid credentials, try again.\r\nLogin as: ")
	if err := conn.login("micro", "wrong", time.Second); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("login error = %v, want ErrLoginFailed", err)
	}
}

func TestTelnetLoginTimeout(t *testing.T) {
	t.Parallel()

	conn, _ := newTestTelnet(t)
	if err := conn.login("micro", "python", 50*time.Millisecond); !errors.Is(err, ErrDeviceTimeout) {
		t.Fatalf("login error = %v, want ErrDeviceTimeout", err)
	}
}
