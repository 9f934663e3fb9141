package main

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/albenik/go-serial/v2"
)

// плата, подключённая через последовательный порт
type serialDevice struct {
	portName string
	baud     int
	// ожидание ответа платы в raw REPL
	timeout time.Duration
	open    func(portName string, baud int) (io.ReadWriteCloser, error)
	// порт открытой консоли; если задан, устройство не открывает порт само
	shared io.ReadWriter
}

func newSerialDevice(portName string, baud int, timeout time.Duration) *serialDevice {
	return &serialDevice{
		portName: portName,
		baud:     baud,
		timeout:  timeout,
		open:     openConsolePort,
	}
}

// Открываем порт с заданной скоростью
func openSerialPort(port string, baudRate int) (*serial.Port, error) {
	// время для таймаутов указано в мс
	// не стоит задавать слишком большой таймаут, чтение и запись в консоли происходят в разных потоках, но закрытие порта ждёт окончания чтения
	serialPort, err := serial.Open(
		port,
		serial.WithBaudrate(baudRate),
		serial.WithReadTimeout(100),
		serial.WithWriteTimeout(100),
	)
	if err != nil {
		return nil, err
	}
	return serialPort, nil
}

func openConsolePort(portName string, baud int) (io.ReadWriteCloser, error) {
	port, err := openSerialPort(portName, baud)
	if err != nil {
		return nil, err
	}
	return port, nil
}

func (d *serialDevice) throughConsole(port io.ReadWriter) Device {
	shared := *d
	shared.shared = port
	return &shared
}

// порт для одной операции; done закрывает порт, если он открыт этой операцией
func (d *serialDevice) port() (port io.ReadWriter, done func(), err error) {
	if d.shared != nil {
		return d.shared, func() {}, nil
	}
	opened, err := d.open(d.portName, d.baud)
	if err != nil {
		return nil, nil, err
	}
	return opened, func() { opened.Close() }, nil
}

func (d *serialDevice) Test(ctx context.Context) (string, error) {
	port, done, err := d.port()
	if err != nil {
		return "", err
	}
	defer done()
	if _, err := port.Write([]byte("\r\n")); err != nil {
		return "", err
	}
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	buf := make([]byte, 256)
	n, err := port.Read(buf)
	if err != nil {
		return "", err
	}
	printLog("serial test answer:", fmt.Sprintf("%q", buf[:n]))
	return "Serial connection successful", nil
}

// переводит плату в raw REPL и выполняет action
func (d *serialDevice) withRawREPL(ctx context.Context, action func(repl *rawREPL) error) error {
	port, done, err := d.port()
	if err != nil {
		return err
	}
	defer done()
	repl := newRawREPL(port, d.timeout)
	repl.writeDelay = 10 * time.Millisecond
	if err := repl.enter(ctx); err != nil {
		return err
	}
	defer func() {
		if err := repl.exit(); err != nil {
			printLog("raw REPL exit:", err)
		}
	}()
	return action(repl)
}

func (d *serialDevice) Upload(ctx context.Context, files []UploadFile) ([]string, error) {
	var uploaded []string
	err := d.withRawREPL(ctx, func(repl *rawREPL) error {
		var err error
		uploaded, err = uploadWithRawREPL(ctx, repl, files)
		return err
	})
	return uploaded, err
}

func (d *serialDevice) Download(ctx context.Context, names []string, dst *zip.Writer) ([]string, []string, error) {
	var downloaded, failed []string
	err := d.withRawREPL(ctx, func(repl *rawREPL) error {
		var err error
		downloaded, failed, err = downloadWithRawREPL(ctx, repl, names, dst)
		return err
	})
	return downloaded, failed, err
}

func (d *serialDevice) List(ctx context.Context) ([]string, error) {
	var names []string
	err := d.withRawREPL(ctx, func(repl *rawREPL) error {
		var err error
		names, err = repl.listFiles(ctx)
		return err
	})
	return names, err
}

// консолью служит сам порт; чтение возвращает 0 байт по таймауту
func (d *serialDevice) Console(ctx context.Context) (io.ReadWriteCloser, error) {
	return d.open(d.portName, d.baud)
}

// загрузка файлов через уже открытый raw REPL
func uploadWithRawREPL(ctx context.Context, repl *rawREPL, files []UploadFile) ([]string, error) {
	var uploaded []string
	for _, file := range files {
		name := secureFilename(file.Name)
		if name == "" {
			printLog("skip file with bad name:", file.Name)
			continue
		}
		if err := repl.putFile(ctx, name, file.Data); err != nil {
			return uploaded, fmt.Errorf("%s: %w", name, err)
		}
		uploaded = append(uploaded, name)
	}
	return uploaded, nil
}

// скачивание файлов через уже открытый raw REPL;
// файлы, чтение которых закончилось исключением на плате, пропускаются
func downloadWithRawREPL(ctx context.Context, repl *rawREPL, names []string, dst *zip.Writer) (downloaded []string, failed []string, err error) {
	for _, name := range names {
		data, err := repl.getFile(ctx, name)
		if err != nil {
			var deviceErr *DeviceError
			if errors.As(err, &deviceErr) {
				printLog("failed to download", name, deviceErr)
				failed = append(failed, name)
				continue
			}
			return downloaded, failed, err
		}
		if err := writeZipEntry(dst, name, data); err != nil {
			return downloaded, failed, err
		}
		downloaded = append(downloaded, name)
	}
	return downloaded, failed, nil
}
