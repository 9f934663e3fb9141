// работа с платой через raw REPL MicroPython
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	rawREPLBanner = "raw REPL; CTRL-B to exit\r\n>"
	// размер блока кода, отправляемого за раз, больше платы могут не успеть принять
	rawREPLWriteBlock = 256
	// размер части файла, передаваемой в одной строке base64
	rawREPLFileBlock = 384
	// количество строк с данными в одном выполнении кода
	rawREPLLinesPerExec = 8
)

// порт, у которого можно очистить входной буфер (есть у serial.Port)
type inputResetter interface {
	ResetInputBuffer() error
}

type rawREPL struct {
	port io.ReadWriter
	// данные, прочитанные после последнего найденного маркера
	pending []byte
	timeout time.Duration
	// пауза между блоками кода
	writeDelay time.Duration
}

func newRawREPL(port io.ReadWriter, timeout time.Duration) *rawREPL {
	return &rawREPL{
		port:    port,
		timeout: timeout,
	}
}

// читает данные до маркера включительно
func (r *rawREPL) readUntil(ctx context.Context, marker string) ([]byte, error) {
	deadline := time.Now().Add(r.timeout)
	buf := make([]byte, 256)
	for {
		if i := bytes.Index(r.pending, []byte(marker)); i >= 0 {
			end := i + len(marker)
			data := append([]byte(nil), r.pending[:end]...)
			r.pending = r.pending[end:]
			return data, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: waiting for %q", ErrDeviceTimeout, marker)
		}
		n, err := r.port.Read(buf)
		if n > 0 {
			r.pending = append(r.pending, buf[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
		// истёк таймаут чтения порта
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *rawREPL) write(data string) error {
	_, err := r.port.Write([]byte(data))
	return err
}

// прерывает выполняющуюся программу и переводит плату в raw REPL
func (r *rawREPL) enter(ctx context.Context) error {
	if err := r.write("\r\x03\x03"); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if resetter, ok := r.port.(inputResetter); ok {
		if err := resetter.ResetInputBuffer(); err != nil {
			printLog("raw REPL: reset input buffer:", err)
		}
	}
	r.pending = nil
	if err := r.write("\r\x01"); err != nil {
		return err
	}
	if _, err := r.readUntil(ctx, rawREPLBanner); err != nil {
		return fmt.Errorf("%w: %v", ErrRawREPL, err)
	}
	return nil
}

// возврат в обычный REPL
func (r *rawREPL) exit() error {
	return r.write("\r\x02")
}

// выполняет код, возвращает то, что код напечатал;
// если код завершился исключением, то возвращает *DeviceError
func (r *rawREPL) exec(ctx context.Context, code string) ([]byte, error) {
	transmission := newDataTransmission([]byte(code), rawREPLWriteBlock)
	for !transmission.isFinish() {
		if _, err := r.port.Write(transmission.popBlock()); err != nil {
			return nil, err
		}
		if r.writeDelay > 0 {
			time.Sleep(r.writeDelay)
		}
	}
	if err := r.write("\x04"); err != nil {
		return nil, err
	}
	ok, err := r.readUntil(ctx, "OK")
	if err != nil {
		return nil, err
	}
	if len(ok) != 2 {
		return nil, fmt.Errorf("%w: %q", ErrRawREPLResponse, ok)
	}
	stdout, err := r.readUntil(ctx, "\x04")
	if err != nil {
		return nil, err
	}
	stderr, err := r.readUntil(ctx, "\x04")
	if err != nil {
		return nil, err
	}
	if _, err := r.readUntil(ctx, ">"); err != nil {
		return nil, err
	}
	stdout = stdout[:len(stdout)-1]
	stderr = stderr[:len(stderr)-1]
	if len(stderr) > 0 {
		return stdout, &DeviceError{Traceback: string(stderr)}
	}
	return stdout, nil
}

// записывает файл на плату
func (r *rawREPL) putFile(ctx context.Context, name string, data []byte) error {
	_, err := r.exec(ctx, fmt.Sprintf("import ubinascii\nf=open(%s,'wb')\nw=f.write\n", pyQuote(name)))
	if err != nil {
		return err
	}
	transmission := newDataTransmission(data, rawREPLFileBlock)
	for !transmission.isFinish() {
		var code strings.Builder
		for i := 0; i < rawREPLLinesPerExec && !transmission.isFinish(); i++ {
			fmt.Fprintf(&code, "w(ubinascii.a2b_base64('%s'))\n", base64.StdEncoding.EncodeToString(transmission.popBlock()))
		}
		if _, err := r.exec(ctx, code.String()); err != nil {
			r.exec(ctx, "f.close()\n")
			return err
		}
	}
	_, err = r.exec(ctx, "f.close()\n")
	return err
}

// читает файл с платы
func (r *rawREPL) getFile(ctx context.Context, name string) ([]byte, error) {
	code := fmt.Sprintf(`import ubinascii
with open(%s,'rb') as f:
    while 1:
        b=f.read(%d)
        if not b:
            break
        print(ubinascii.b2a_base64(b).decode().strip())
`, pyQuote(name), rawREPLFileBlock)
	out, err := r.exec(ctx, code)
	if err != nil {
		return nil, err
	}
	var data []byte
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		block, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRawREPLResponse, err)
		}
		data = append(data, block...)
	}
	return data, nil
}

// список файлов в текущем каталоге платы
func (r *rawREPL) listFiles(ctx context.Context) ([]string, error) {
	out, err := r.exec(ctx, "import os\nfor n in os.listdir():\n    print(n)\n")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// строковый литерал Python
func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, c := range []byte(s) {
		switch {
		case c == '\\' || c == '\'':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\x%02x", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
