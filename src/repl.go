// мост между веб-сокетом /repl и консолью платы
package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// время, за которое клиент должен прислать описание подключения
const handshakeTimeout = 10 * time.Second

// время на отправку одного сообщения клиенту
const writeTimeout = 5 * time.Second

// максимальное количество сообщений, которые ожидают отправки клиенту
const maxWaitingMessages = 50

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: handshakeTimeout,
}

// сессия консоли: одно соединение с клиентом и одна консоль платы
type replSession struct {
	id  string
	key string
	ws  *websocket.Conn
	// сообщения для клиента, отправляет только writer
	outgoing chan []byte
	done     chan struct{}
	// закрывается, когда writer закрыл веб-сокет
	writerDone chan struct{}
	closeOnce  sync.Once
	mu         sync.Mutex
	// сигналит об изменении closed, paused, reading и writing
	cond    *sync.Cond
	console io.ReadWriteCloser
	closed  bool
	// консоль отдана файловой операции, насосы ждут
	paused  bool
	reading bool
	writing bool
	log     *log.Entry
}

func newReplSession(ws *websocket.Conn) *replSession {
	id := uuid.NewString()
	session := &replSession{
		id:         id,
		ws:         ws,
		outgoing:   make(chan []byte, maxWaitingMessages),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		log:        log.WithField("session", id),
	}
	session.cond = sync.NewCond(&session.mu)
	return session
}

// отправка сообщения клиенту; после закрытия сессии сообщения отбрасываются
func (s *replSession) send(msg []byte) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.outgoing <- msg:
	case <-s.done:
	}
}

// сообщает клиенту об ошибке и закрывает сессию
func (s *replSession) fail(err error) {
	s.log.Warn(err)
	s.send([]byte("Error: " + err.Error() + "\n"))
	s.close()
}

// закрывает консоль платы, веб-сокет закроет writer после отправки оставшихся сообщений
func (s *replSession) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		// порт закрывается только после окончания файловой операции
		for s.paused {
			s.cond.Wait()
		}
		console := s.console
		s.mu.Unlock()
		close(s.done)
		if console != nil {
			if err := console.Close(); err != nil {
				printLog("console close:", err)
			}
		}
	})
}

// привязывает консоль к сессии; если сессия уже закрыта, консоль закрывается сразу
func (s *replSession) setConsole(console io.ReadWriteCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		console.Close()
		return false
	}
	s.console = console
	return true
}

// отмечает начало чтения или записи консоли; ждёт, пока консоль отдана файловой операции.
// false, если сессия закрыта
func (s *replSession) begin(flag *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return false
	}
	*flag = true
	return true
}

func (s *replSession) end(flag *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*flag = false
	s.cond.Broadcast()
}

// останавливает насосы и отдаёт порт консоли; release возвращает порт сессии.
// Чтение последовательного порта прерывается по таймауту, поэтому ожидание короткое
func (s *replSession) pause() (port io.ReadWriter, release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.closed {
		s.cond.Wait()
	}
	if s.closed || s.console == nil {
		return nil, nil, ErrConsoleClosed
	}
	s.paused = true
	for (s.reading || s.writing) && !s.closed {
		s.cond.Wait()
	}
	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mu.Lock()
			s.paused = false
			s.cond.Broadcast()
			s.mu.Unlock()
		})
	}
	if s.closed {
		s.paused = false
		s.cond.Broadcast()
		return nil, nil, ErrConsoleClosed
	}
	return s.console, release, nil
}

// единственная горутина, которая пишет в веб-сокет
func (s *replSession) writer() {
	defer close(s.writerDone)
	defer s.ws.Close()
	for {
		select {
		case msg := <-s.outgoing:
			if err := s.write(msg); err != nil {
				printLog("repl writer:", err)
				s.close()
				return
			}
		case <-s.done:
			for {
				select {
				case msg := <-s.outgoing:
					if err := s.write(msg); err != nil {
						return
					}
				default:
					s.ws.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeTimeout),
					)
					return
				}
			}
		}
	}
}

func (s *replSession) write(msg []byte) error {
	s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.ws.WriteMessage(websocket.TextMessage, msg)
}

// чтение консоли платы и пересылка клиенту
func (s *replSession) devicePump(console io.Reader) {
	buf := make([]byte, 1024)
	var pending []byte
	for {
		if !s.begin(&s.reading) {
			return
		}
		n, err := console.Read(buf)
		s.end(&s.reading)
		if n > 0 {
			var complete []byte
			complete, pending = splitUTF8(append(pending, buf[:n]...))
			if len(complete) > 0 {
				s.send(validUTF8(complete))
			}
		}
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if len(pending) > 0 {
				s.send(validUTF8(pending))
			}
			if errors.Is(err, io.EOF) {
				err = ErrConsoleClosed
			}
			s.fail(err)
			return
		}
		// последовательный порт возвращает 0 байт по таймауту чтения
		if n == 0 {
			select {
			case <-s.done:
				return
			default:
			}
		}
	}
}

// пересылка сообщений клиента в консоль платы
func (s *replSession) clientPump(console io.Writer) {
	for {
		_, payload, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Infof("error reading message: %v", err)
			}
			return
		}
		if !s.begin(&s.writing) {
			return
		}
		_, err = console.Write(commitLine(payload))
		s.end(&s.writing)
		if err != nil {
			s.fail(err)
			return
		}
	}
}

// одиночный управляющий символ передаётся как есть, к строке без перевода строки добавляется \r
func commitLine(payload []byte) []byte {
	if len(payload) == 1 && payload[0] < 0x20 {
		return payload
	}
	if n := len(payload); n > 0 && (payload[n-1] == '\r' || payload[n-1] == '\n') {
		return payload
	}
	return append(payload, '\r')
}

// шум на линии (например, при неверной скорости) заменяется на U+FFFD,
// браузер закрывает соединение, получив некорректный текстовый кадр
func validUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("\uFFFD"))
}

// отделяет незаконченный UTF-8 символ в конце данных, текстовые сообщения должны быть корректным UTF-8
func splitUTF8(data []byte) (complete []byte, rest []byte) {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return data, nil
		}
		return data[:i], append([]byte(nil), data[i:]...)
	}
	return data, nil
}

// обработка нового соединения /repl
func (srv *Server) serveRepl(w http.ResponseWriter, r *http.Request) {
	ws, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("repl upgrade: %v", err)
		return
	}
	ws.SetReadLimit(int64(srv.config.MaxMsgSize))
	session := newReplSession(ws)
	go session.writer()
	defer func() {
		session.close()
		<-session.writerDone
	}()

	ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, hello, err := ws.ReadMessage()
	if err != nil {
		session.fail(ErrBadHello)
		return
	}
	ws.SetReadDeadline(time.Time{})
	conn, err := parseHello(hello)
	if err != nil {
		session.fail(err)
		return
	}
	device, err := srv.openDevice(conn)
	if err != nil {
		session.fail(err)
		return
	}
	session.key = conn.Key()
	session.log = session.log.WithField("device", session.key)

	// прежняя сессия должна освободить плату до того, как консоль откроется снова
	if previous := srv.consoles.Swap(session.key, session); previous != nil {
		previous.fail(ErrSessionReplaced)
	}
	defer srv.consoles.Remove(session.key, session)

	ctx, cancel := context.WithTimeout(r.Context(), srv.config.Device.Timeout)
	console, err := device.Console(ctx)
	cancel()
	if err != nil {
		session.fail(err)
		return
	}
	if !session.setConsole(console) {
		return
	}
	session.log.Info("REPL session opened")
	srv.metrics.replSessions.Inc()
	defer srv.metrics.replSessions.Dec()

	go session.devicePump(console)
	session.clientPump(console)
	session.log.Info("REPL session closed")
}

// устройство для операции с платой. Если консоль этой платы открыта и устройство
// умеет работать через её порт, консоль приостанавливается до вызова release
func (srv *Server) deviceFor(conn Connection) (device Device, release func(), err error) {
	device, err = srv.openDevice(conn)
	if err != nil {
		return nil, nil, err
	}
	release = func() {}
	sharer, ok := device.(consoleSharer)
	if !ok {
		return device, release, nil
	}
	session, exists := srv.consoles.Get(conn.Key())
	if !exists {
		return device, release, nil
	}
	port, resume, err := session.pause()
	if err != nil {
		// сессия закрылась, порт свободен
		return device, release, nil
	}
	session.log.Debug("console paused for board operation")
	return sharer.throughConsole(port), resume, nil
}
