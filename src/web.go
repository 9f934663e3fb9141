// HTTP API менеджера плат
package main

import (
	"archive/zip"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:embed index.html
var staticPage []byte

// параметры сервера, задаются флагами
type ServerConfig struct {
	// максимальный размер тела запроса /api/upload (в байтах)
	MaxFileSize int64
	// максимальный размер одного сообщения веб-сокета (в байтах)
	MaxMsgSize int
	// подключение к платам, Timeout ограничивает и одну операцию с платой
	Device DeviceConfig
}

type Server struct {
	config     ServerConfig
	router     *mux.Router
	openDevice DeviceOpener
	ports      *Cooldown
	archives   *archiveStore
	consoles   *consoleList
	boards     *BoardManager
	faq        *FAQ
	metrics    *serverMetrics
	// nil, если авторизация отключена
	auth *basicAuth
}

// ответ на запрос, выполняющий действие с платой
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type UploadResult struct {
	Result
	Files []string `json:"files,omitempty"`
}

type DownloadResult struct {
	Result
	ZipPath string   `json:"zip_path,omitempty"`
	Files   []string `json:"files,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

type FileListResult struct {
	Result
	Files []string `json:"files"`
}

// тело запроса /api/download
type DownloadRequest struct {
	Connection Connection `json:"connection"`
	Files      []string   `json:"files"`
}

func NewServer(config ServerConfig, openDevice DeviceOpener, listPorts PortLister, archives *archiveStore, boards *BoardManager, faq *FAQ, auth *basicAuth) *Server {
	srv := &Server{
		config:     config,
		router:     mux.NewRouter(),
		openDevice: openDevice,
		ports:      newCooldown(portListCooldown, listPorts),
		archives:   archives,
		consoles:   newConsoleList(),
		boards:     boards,
		faq:        faq,
		metrics:    newServerMetrics(),
		auth:       auth,
	}
	srv.routes()
	return srv
}

func (srv *Server) routes() {
	r := srv.router
	r.Use(requestLogger, srv.metrics.middleware)
	if srv.auth != nil {
		r.Use(srv.auth.middleware)
	}
	r.HandleFunc("/", srv.index).Methods(http.MethodGet)
	r.HandleFunc("/faq", srv.faqPage).Methods(http.MethodGet)
	r.HandleFunc("/download", srv.serveArchive).Methods(http.MethodGet)
	r.HandleFunc("/repl", srv.serveRepl)
	r.Handle("/metrics", srv.metrics.handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/boards", srv.getBoards).Methods(http.MethodGet)
	api.HandleFunc("/serial-ports", srv.getSerialPorts).Methods(http.MethodGet)
	api.HandleFunc("/faq", srv.getFAQ).Methods(http.MethodGet)
	api.HandleFunc("/test-connection", srv.testConnection).Methods(http.MethodPost)
	api.HandleFunc("/upload", srv.upload).Methods(http.MethodPost)
	api.HandleFunc("/download", srv.download).Methods(http.MethodPost)
	api.HandleFunc("/files", srv.listFiles).Methods(http.MethodPost)
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.router.ServeHTTP(w, r)
}

// закрывает консоли и удаляет архивы
func (srv *Server) Close() {
	srv.consoles.CloseAll()
	srv.archives.Stop()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		printLog("writing JSON error:", err)
	}
}

func failure(message string) Result {
	return Result{Success: false, Message: message}
}

// сообщение об ошибке передачи файлов, action = upload или download
func transferFailure(conn Connection, action string, err error) string {
	switch conn.Type {
	case WifiConnection:
		return fmt.Sprintf("FTP %s failed: %v", action, err)
	case SerialConnection:
		return fmt.Sprintf("Serial %s failed: %v", action, err)
	}
	return err.Error()
}

func (srv *Server) deviceContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), srv.config.Device.Timeout)
}

func (srv *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(staticPage)
}

func (srv *Server) faqPage(w http.ResponseWriter, r *http.Request) {
	page, err := srv.faq.Render(r.URL.Query().Get("q"))
	if err != nil {
		log.Errorf("faq page: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (srv *Server) getFAQ(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.faq.Search(r.URL.Query().Get("q")))
}

func (srv *Server) getBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.boards.Boards())
}

func (srv *Server) getSerialPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := srv.ports.Ports()
	if err != nil {
		log.Errorf("serial ports: %v", err)
		writeJSON(w, http.StatusInternalServerError, failure(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ports)
}

func (srv *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	var conn Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	}
	device, release, err := srv.deviceFor(conn)
	if err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	defer release()
	ctx, cancel := srv.deviceContext(r)
	defer cancel()
	message, err := device.Test(ctx)
	if err != nil {
		log.WithField("device", conn.Key()).Warnf("test failed: %v", err)
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Message: message})
}

func (srv *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, srv.config.MaxFileSize)
	if err := r.ParseMultipartForm(srv.config.MaxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, failure(fmt.Sprintf("Files are larger than %d bytes", tooLarge.Limit)))
		case errors.Is(err, http.ErrNotMultipart):
			writeJSON(w, http.StatusOK, failure(ErrNoFiles.Error()))
		default:
			writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		}
		return
	}
	defer r.MultipartForm.RemoveAll()
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusOK, failure(ErrNoFiles.Error()))
		return
	}
	var conn Connection
	if err := json.Unmarshal([]byte(r.FormValue("connection")), &conn); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	}
	files, err := readUploadFiles(headers)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	}
	device, release, err := srv.deviceFor(conn)
	if err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	defer release()
	ctx, cancel := srv.deviceContext(r)
	defer cancel()
	uploaded, err := device.Upload(ctx, files)
	srv.metrics.files.WithLabelValues("upload").Add(float64(len(uploaded)))
	if err != nil {
		log.WithField("device", conn.Key()).Warnf("upload failed: %v", err)
		writeJSON(w, http.StatusOK, UploadResult{Result: failure(transferFailure(conn, "upload", err)), Files: uploaded})
		return
	}
	message := fmt.Sprintf("Uploaded %d files", len(uploaded))
	if conn.Type == SerialConnection {
		message += " via serial"
	}
	writeJSON(w, http.StatusOK, UploadResult{
		Result: Result{Success: true, Message: message},
		Files:  uploaded,
	})
}

func readUploadFiles(headers []*multipart.FileHeader) ([]UploadFile, error) {
	files := make([]UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, UploadFile{Name: header.Filename, Data: data})
	}
	return files, nil
}

func (srv *Server) download(w http.ResponseWriter, r *http.Request) {
	var request DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	}
	conn := request.Connection
	if err := conn.Validate(); err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	request.Files = uniqueEntryNames(request.Files)
	if len(request.Files) == 0 {
		writeJSON(w, http.StatusOK, failure(ErrNoFiles.Error()))
		return
	}
	device, release, err := srv.deviceFor(conn)
	if err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	defer release()
	ctx, cancel := srv.deviceContext(r)
	defer cancel()
	var downloaded, failed []string
	path, err := srv.archives.Build(func(zw *zip.Writer) error {
		var err error
		downloaded, failed, err = device.Download(ctx, request.Files, zw)
		return err
	})
	if err != nil {
		log.WithField("device", conn.Key()).Warnf("download failed: %v", err)
		writeJSON(w, http.StatusOK, failure(transferFailure(conn, "download", err)))
		return
	}
	srv.metrics.files.WithLabelValues("download").Add(float64(len(downloaded)))
	message := fmt.Sprintf("Downloaded %d files", len(downloaded))
	if len(failed) > 0 {
		message += fmt.Sprintf(", %d failed", len(failed))
	}
	writeJSON(w, http.StatusOK, DownloadResult{
		Result:  Result{Success: true, Message: message},
		ZipPath: path,
		Files:   downloaded,
		Failed:  failed,
	})
}

// отдаёт архив, созданный этим сервером
func (srv *Server) serveArchive(w http.ResponseWriter, r *http.Request) {
	path, err := srv.archives.Lookup(r.URL.Query().Get("path"))
	if err != nil {
		http.Error(w, ErrArchiveNotFound.Error(), http.StatusNotFound)
		return
	}
	file, err := os.Open(path)
	if err != nil {
		http.Error(w, ErrArchiveNotFound.Error(), http.StatusNotFound)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		http.Error(w, ErrArchiveNotFound.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveName))
	http.ServeContent(w, r, archiveName, info.ModTime(), file)
}

func (srv *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	var conn Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	}
	device, release, err := srv.deviceFor(conn)
	if err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	defer release()
	ctx, cancel := srv.deviceContext(r)
	defer cancel()
	names, err := device.List(ctx)
	if err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, FileListResult{
		Result: Result{Success: true, Message: fmt.Sprintf("%d files on board", len(names))},
		Files:  names,
	})
}
