// telnet-консоль платы (WiPy, ESP32 с MicroPython)
package main

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ziutek/telnet"
)

// соединение telnet с REPL платы; согласование опций выполняет ziutek/telnet,
// он отказывается от всех опций, кроме эха и подавления go-ahead
type telnetConn struct {
	conn    *telnet.Conn
	writeMu sync.Mutex
}

func newTelnetConn(conn net.Conn) (*telnetConn, error) {
	tc, err := telnet.NewConn(conn)
	if err != nil {
		return nil, err
	}
	return &telnetConn{conn: tc}, nil
}

func (t *telnetConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return t.conn.Read(p)
}

// байт 255 в данных удваивается библиотекой
func (t *telnetConn) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *telnetConn) Close() error {
	return t.conn.Close()
}

// пропускает данные до одной из строк, возвращает номер найденной строки
func (t *telnetConn) expect(timeout time.Duration, markers ...string) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return -1, err
	}
	defer t.conn.SetReadDeadline(time.Time{})
	found, err := t.conn.SkipUntilIndex(markers...)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return -1, fmt.Errorf("%w: waiting for %q", ErrDeviceTimeout, markers)
		}
		return -1, err
	}
	return found, nil
}

// вход в telnet REPL платы
func (t *telnetConn) login(username, password string, timeout time.Duration) error {
	if _, err := t.expect(timeout, "Login as:"); err != nil {
		return err
	}
	if _, err := t.Write([]byte(username + "\r\n")); err != nil {
		return err
	}
	if _, err := t.expect(timeout, "Password:"); err != nil {
		return err
	}
	if _, err := t.Write([]byte(password + "\r\n")); err != nil {
		return err
	}
	found, err := t.expect(timeout, "Login succeeded", "Invalid")
	if err != nil {
		return err
	}
	if found != 0 {
		return ErrLoginFailed
	}
	return nil
}
