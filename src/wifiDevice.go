package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// плата, доступная по сети: файлы через FTP, консоль через telnet
type wifiDevice struct {
	config     WifiConfig
	ftpPort    int
	telnetPort int
	timeout    time.Duration
}

func newWifiDevice(config WifiConfig, ftpPort, telnetPort int, timeout time.Duration) *wifiDevice {
	return &wifiDevice{
		config:     config,
		ftpPort:    ftpPort,
		telnetPort: telnetPort,
		timeout:    timeout,
	}
}

// подключение и вход на FTP-сервер платы
func (d *wifiDevice) dialFTP(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(d.config.Address, strconv.Itoa(d.ftpPort))
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(d.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := conn.Login(d.config.Username, d.config.Password); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

func (d *wifiDevice) Test(ctx context.Context) (string, error) {
	conn, err := d.dialFTP(ctx)
	if err != nil {
		return "", err
	}
	if err := conn.Quit(); err != nil {
		printLog("ftp quit:", err)
	}
	return "Connection successful", nil
}

func (d *wifiDevice) Upload(ctx context.Context, files []UploadFile) ([]string, error) {
	conn, err := d.dialFTP(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()
	var uploaded []string
	for _, file := range files {
		name := secureFilename(file.Name)
		if name == "" {
			printLog("skip file with bad name:", file.Name)
			continue
		}
		if err := conn.Stor(name, bytes.NewReader(file.Data)); err != nil {
			return uploaded, fmt.Errorf("%s: %w", name, err)
		}
		uploaded = append(uploaded, name)
	}
	return uploaded, nil
}

func (d *wifiDevice) Download(ctx context.Context, names []string, dst *zip.Writer) (downloaded []string, failed []string, err error) {
	conn, err := d.dialFTP(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Quit()
	for _, name := range names {
		data, err := retrieve(conn, name)
		if err != nil {
			printLog("failed to download", name, err)
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

func retrieve(conn *ftp.ServerConn, name string) ([]byte, error) {
	response, err := conn.Retr(name)
	if err != nil {
		return nil, err
	}
	defer response.Close()
	return io.ReadAll(response)
}

func (d *wifiDevice) List(ctx context.Context) ([]string, error) {
	conn, err := d.dialFTP(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()
	return conn.NameList(".")
}

func (d *wifiDevice) Console(ctx context.Context) (io.ReadWriteCloser, error) {
	addr := net.JoinHostPort(d.config.Address, strconv.Itoa(d.telnetPort))
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	console, err := newTelnetConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := console.login(d.config.Username, d.config.Password, d.timeout); err != nil {
		conn.Close()
		return nil, err
	}
	return console, nil
}
