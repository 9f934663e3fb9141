package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// фальшивая плата, используется для тестирования, воспринимается как плата на последовательном порту
type FakeBoard struct {
	portName string
	mu       sync.Mutex
	files    map[string][]byte
}

func NewFakeBoard(portName string) *FakeBoard {
	return &FakeBoard{
		portName: portName,
		files:    make(map[string][]byte),
	}
}

func (board *FakeBoard) Test(ctx context.Context) (string, error) {
	return "Serial connection successful", nil
}

func (board *FakeBoard) Upload(ctx context.Context, files []UploadFile) ([]string, error) {
	board.mu.Lock()
	defer board.mu.Unlock()
	var uploaded []string
	for _, file := range files {
		name := secureFilename(file.Name)
		if name == "" {
			continue
		}
		board.files[name] = append([]byte(nil), file.Data...)
		uploaded = append(uploaded, name)
	}
	printLog(fmt.Sprintf("Fake uploading of %v in board %s is completed", uploaded, board.portName))
	return uploaded, nil
}

func (board *FakeBoard) Download(ctx context.Context, names []string, dst *zip.Writer) (downloaded []string, failed []string, err error) {
	board.mu.Lock()
	defer board.mu.Unlock()
	for _, name := range names {
		data, exists := board.files[name]
		if !exists {
			printLog(board.portName, name, ErrFakeNoFile)
			failed = append(failed, name)
			continue
		}
		if err := writeZipEntry(dst, name, data); err != nil {
			return downloaded, failed, err
		}
		downloaded = append(downloaded, name)
	}
	return downloaded, failed, nil
}

func (board *FakeBoard) List(ctx context.Context) ([]string, error) {
	board.mu.Lock()
	defer board.mu.Unlock()
	names := make([]string, 0, len(board.files))
	for name := range board.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (board *FakeBoard) Console(ctx context.Context) (io.ReadWriteCloser, error) {
	return newFakeConsole(), nil
}

// консоль фальшивой платы: повторяет строки и отвечает на управляющие символы как REPL
type fakeConsole struct {
	mu     sync.Mutex
	cond   *sync.Cond
	output []byte
	line   []byte
	closed bool
}

func newFakeConsole() *fakeConsole {
	console := &fakeConsole{}
	console.cond = sync.NewCond(&console.mu)
	console.output = []byte("MicroPython (fake board)\r\n>>> ")
	return console
}

func (c *fakeConsole) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.output) == 0 && !c.closed {
		c.cond.Wait()
	}
	if len(c.output) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.output)
	c.output = c.output[n:]
	return n, nil
}

func (c *fakeConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	for _, b := range p {
		switch b {
		case '\x03':
			c.line = c.line[:0]
			c.output = append(c.output, "\r\nKeyboardInterrupt: \r\n>>> "...)
		case '\x04':
			c.line = c.line[:0]
			c.output = append(c.output, "\r\nMPY: soft reboot\r\nMicroPython (fake board)\r\n>>> "...)
		case '\r', '\n':
			if len(c.line) == 0 && b == '\n' {
				continue
			}
			c.output = append(c.output, c.line...)
			c.output = append(c.output, "\r\n>>> "...)
			c.line = c.line[:0]
		default:
			c.line = append(c.line, b)
		}
	}
	c.cond.Broadcast()
	return len(p), nil
}

func (c *fakeConsole) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

// список фальшивых плат, ключ - имя порта
type fakeBoardList struct {
	mu     sync.Mutex
	boards map[string]*FakeBoard
}

var fakeBoards = &fakeBoardList{boards: make(map[string]*FakeBoard)}

// генерация фальшивых плат, которые будут восприниматься программой как настоящие
func (l *fakeBoardList) generate(num int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < num; i++ {
		fakePort := fmt.Sprintf("fakecom-%d", i)
		l.boards[fakePort] = NewFakeBoard(fakePort)
	}
}

func (l *fakeBoardList) get(portName string) (*FakeBoard, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	board, exists := l.boards[portName]
	return board, exists
}

func (l *fakeBoardList) ports() []PortInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	ports := make([]PortInfo, 0, len(l.boards))
	for name := range l.boards {
		ports = append(ports, PortInfo{
			Device:      name,
			Description: "Fake Board",
			HWID:        "FAKE",
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Device < ports[j].Device })
	return ports
}
