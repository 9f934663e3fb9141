// клиентская сторона консоли: одна сессия /repl и журнал вывода
package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type ConsoleState int

const (
	Disconnected ConsoleState = iota
	Connecting
	Connected
)

func (s ConsoleState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// сообщения, которые консоль добавляет в журнал сама
const (
	connectedNotice    = "Connected to board REPL\n"
	disconnectedNotice = "Disconnected from board REPL\n"
	interruptNotice    = "\n*** Interrupted ***\n"
	softResetNotice    = "\n*** Soft Reset ***\n"
)

// одно соединение с /repl
type consoleSession struct {
	ws *websocket.Conn
	// закрывается, когда reader завершился
	done    chan struct{}
	closing atomic.Bool
	writeMu sync.Mutex
}

func (s *consoleSession) write(data string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

// Console владеет не более чем одной сессией REPL; новая сессия закрывает прежнюю
type Console struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   ConsoleState
	session *consoleSession
	output  strings.Builder
	// вызывается под блокировкой для каждого добавленного фрагмента, не должен обращаться к Console
	onOutput func(text string)
}

// url - адрес веб-сокета, например ws://localhost:5000/repl
func NewConsole(url string, header http.Header) *Console {
	return &Console{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

func (c *Console) SetOutputHandler(handler func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOutput = handler
}

func (c *Console) State() ConsoleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// весь журнал вывода
func (c *Console) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.String()
}

func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output.Reset()
}

func (c *Console) append(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(text)
}

func (c *Console) appendLocked(text string) {
	c.output.WriteString(text)
	if c.onOutput != nil {
		c.onOutput(text)
	}
}

// открывает сессию для подключения conn; первое сообщение - описание подключения
func (c *Console) Open(ctx context.Context, conn Connection) error {
	c.Close()
	hello, err := conn.Hello()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.appendLocked("Error: " + err.Error() + "\n")
		c.appendLocked(disconnectedNotice)
		c.mu.Unlock()
		return err
	}
	session := &consoleSession{ws: ws, done: make(chan struct{})}
	// сессия становится доступной Send только после описания подключения
	if err := session.write(string(hello)); err != nil {
		ws.Close()
		c.mu.Lock()
		c.state = Disconnected
		c.appendLocked("Error: " + err.Error() + "\n")
		c.appendLocked(disconnectedNotice)
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.session = session
	c.state = Connected
	c.appendLocked(connectedNotice)
	c.mu.Unlock()
	go c.reader(session)
	return nil
}

func (c *Console) reader(session *consoleSession) {
	defer close(session.done)
	for {
		_, msg, err := session.ws.ReadMessage()
		if err != nil {
			if !session.closing.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.append("Error: " + err.Error() + "\n")
			}
			break
		}
		c.append(string(msg))
	}
	session.ws.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.session = nil
		c.state = Disconnected
	}
	c.appendLocked(disconnectedNotice)
}

// закрывает текущую сессию и ждёт, пока в журнал попадёт сообщение об отключении
func (c *Console) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.state = Disconnected
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	session.closing.Store(true)
	session.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := session.ws.Close()
	<-session.done
	return err
}

func (c *Console) connected() *consoleSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return nil
	}
	return c.session
}

// отправка строки как есть; без открытой сессии ничего не делает
func (c *Console) Send(line string) error {
	return c.sendWithNotice(line, ">>>> "+line+"\n")
}

// Ctrl+C
func (c *Console) Interrupt() error {
	return c.sendWithNotice("\x03", interruptNotice)
}

// Ctrl+D
func (c *Console) SoftReset() error {
	return c.sendWithNotice("\x04", softResetNotice)
}

func (c *Console) sendWithNotice(data string, notice string) error {
	session := c.connected()
	if session == nil {
		return ErrNotConnected
	}
	if err := session.write(data); err != nil {
		c.append("Error: " + err.Error() + "\n")
		return err
	}
	c.append(notice)
	return nil
}
