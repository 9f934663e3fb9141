// клиент API менеджера плат, используется консольным интерфейсом
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// результат действия для пользователя: зелёный или красный текст
type Status struct {
	OK   bool
	Text string
}

// состояние формы подключения; активна ровно одна из панелей
type ConnectionForm struct {
	active ConnectionType

	Address  string
	Username string
	Password string

	Port string
	// текст поля скорости, разбирается как parseInt
	Baudrate string
}

func NewConnectionForm() *ConnectionForm {
	return &ConnectionForm{
		active:   WifiConnection,
		Username: defaultUsername,
		Password: defaultPassword,
		Baudrate: strconv.Itoa(defaultBaudrate),
	}
}

// выбор панели, вторая панель становится неактивной
func (f *ConnectionForm) Select(t ConnectionType) {
	if t == WifiConnection || t == SerialConnection {
		f.active = t
	}
}

func (f *ConnectionForm) Active() ConnectionType {
	return f.active
}

func (f *ConnectionForm) IsActive(t ConnectionType) bool {
	return f.active == t
}

// описание подключения из активной панели
func (f *ConnectionForm) Connection() Connection {
	if f.active == SerialConnection {
		return NewSerialConnection(f.Port, parseIntPrefix(f.Baudrate))
	}
	return NewWifiConnection(f.Address, f.Username, f.Password)
}

// разбирает целое число в начале строки так же, как parseInt в браузере; nil соответствует NaN
func parseIntPrefix(s string) *int {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	sign := 1
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	base := 10
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < base {
		end++
	}
	if end == 0 {
		return nil
	}
	value, err := strconv.ParseInt(s[:end], base, 0)
	if err != nil {
		return nil
	}
	result := sign * int(value)
	return &result
}

func digitValue(c byte) int {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0')
	case 'a' <= c && c <= 'z':
		return int(c-'a') + 10
	case 'A' <= c && c <= 'Z':
		return int(c-'A') + 10
	}
	return 36
}

// экранирование как encodeURIComponent
func encodeURIComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
			strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

type Client struct {
	base     *url.URL
	http     *http.Client
	username string
	password string
	Form     *ConnectionForm
	Console  *Console
}

// baseURL - адрес сервера, например http://localhost:5000
func NewClient(baseURL string, username, password string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	client := &Client{
		base:     base,
		http:     &http.Client{},
		username: username,
		password: password,
		Form:     NewConnectionForm(),
	}
	client.Console = NewConsole(client.replURL(), client.authHeader())
	return client, nil
}

func (c *Client) resolve(path string) string {
	return c.base.String() + path
}

func (c *Client) replURL() string {
	ws := *c.base
	if ws.Scheme == "https" {
		ws.Scheme = "wss"
	} else {
		ws.Scheme = "ws"
	}
	return ws.String() + "/repl"
}

func (c *Client) authHeader() http.Header {
	header := http.Header{}
	if c.username != "" {
		request := http.Request{Header: header}
		request.SetBasicAuth(c.username, c.password)
	}
	return header
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		request.SetBasicAuth(c.username, c.password)
	}
	return c.http.Do(request)
}

// запрос, ответ на который - JSON
func (c *Client) doJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	response, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("server answered %s", response.Status)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("server answered %s: %w", response.Status, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), out)
}

func (c *Client) TestConnection(ctx context.Context, conn Connection) Status {
	var result Result
	if err := c.postJSON(ctx, "/api/test-connection", conn, &result); err != nil {
		return Status{OK: false, Text: "Connection test failed: " + err.Error()}
	}
	return Status{OK: result.Success, Text: result.Message}
}

// проверка подключения из формы; при успехе открывается консоль с тем же подключением
func (c *Client) Connect(ctx context.Context) Status {
	conn := c.Form.Connection()
	status := c.TestConnection(ctx, conn)
	if !status.OK {
		return status
	}
	if err := c.Console.Open(ctx, conn); err != nil {
		return Status{OK: false, Text: status.Text + ", but REPL connection failed: " + err.Error()}
	}
	return status
}

func (c *Client) SerialPorts(ctx context.Context) ([]PortInfo, error) {
	var ports []PortInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/serial-ports", "", nil, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

func (c *Client) FAQ(ctx context.Context, query string) ([]FAQItem, error) {
	path := "/api/faq"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var items []FAQItem
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Files(ctx context.Context) ([]string, error) {
	var result FileListResult
	if err := c.postJSON(ctx, "/api/files", c.Form.Connection(), &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%s", result.Message)
	}
	return result.Files, nil
}

// загрузка локальных файлов на плату из формы
func (c *Client) Upload(ctx context.Context, paths []string) Status {
	if len(paths) == 0 {
		return Status{OK: false, Text: "No files selected!"}
	}
	body, contentType, err := uploadBody(paths, c.Form.Connection())
	if err != nil {
		return Status{OK: false, Text: "Upload failed: " + err.Error()}
	}
	var result UploadResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/upload", contentType, body, &result); err != nil {
		return Status{OK: false, Text: "Upload failed: " + err.Error()}
	}
	return Status{OK: result.Success, Text: result.Message}
}

// multipart-форма: поле files для каждого файла и поле connection
func uploadBody(paths []string, conn Connection) (io.Reader, string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", err
		}
		part, err := form.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	connection, err := json.Marshal(conn)
	if err != nil {
		return nil, "", err
	}
	if err := form.WriteField("connection", string(connection)); err != nil {
		return nil, "", err
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &body, form.FormDataContentType(), nil
}

// адрес, по которому отдаётся архив
func (c *Client) DownloadURL(zipPath string) string {
	return c.resolve("/download?path=" + encodeURIComponent(zipPath))
}

// скачивание файлов с платы в архив dest
func (c *Client) Download(ctx context.Context, names []string, dest string) Status {
	var result DownloadResult
	request := DownloadRequest{Connection: c.Form.Connection(), Files: names}
	if err := c.postJSON(ctx, "/api/download", request, &result); err != nil {
		return Status{OK: false, Text: "Download failed: " + err.Error()}
	}
	if !result.Success {
		return Status{OK: false, Text: result.Message}
	}
	if err := c.fetchArchive(ctx, result.ZipPath, dest); err != nil {
		return Status{OK: false, Text: "Download failed: " + err.Error()}
	}
	return Status{OK: true, Text: "Download successful!"}
}

func (c *Client) fetchArchive(ctx context.Context, zipPath string, dest string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(zipPath), nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		request.SetBasicAuth(c.username, c.password)
	}
	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %s", response.Status)
	}
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, response.Body); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
