package main

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tjgq/ticker"
)

// имя архива, под которым клиент получает скачанные файлы
const archiveName = "downloaded_files.zip"

// хранит архивы со скачанными с платы файлами и удаляет устаревшие
type archiveStore struct {
	mu sync.Mutex
	// каталог, в котором создаются временные папки архивов
	baseDir string
	ttl     time.Duration
	// путь к архиву - время создания
	archives map[string]time.Time
	// отправляет тик, когда пора удалять устаревшие архивы
	cleanupTicker *ticker.Ticker
	started       bool
	stop          chan struct{}
	stopOnce      sync.Once
}

func newArchiveStore(baseDir string, ttl time.Duration, cleanupEvery time.Duration) *archiveStore {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &archiveStore{
		baseDir:       baseDir,
		ttl:           ttl,
		archives:      make(map[string]time.Time),
		cleanupTicker: ticker.New(cleanupEvery),
		stop:          make(chan struct{}),
	}
}

// создаёт архив во временной папке, содержимое архива записывает fill
func (s *archiveStore) Build(fill func(zw *zip.Writer) error) (string, error) {
	dir := filepath.Join(s.baseDir, "board-download-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, archiveName)
	file, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	zw := zip.NewWriter(file)
	err = fill(zw)
	if closeErr := zw.Close(); err == nil {
		err = closeErr
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	s.mu.Lock()
	s.archives[path] = time.Now()
	s.mu.Unlock()
	return path, nil
}

// возвращает ErrArchiveNotFound, если архив не создавался этим сервером, устарел или удалён
func (s *archiveStore) Lookup(path string) (string, error) {
	path = filepath.Clean(path)
	s.mu.Lock()
	created, known := s.archives[path]
	s.mu.Unlock()
	if !known || time.Since(created) > s.ttl {
		return "", ErrArchiveNotFound
	}
	found, err := exists(path)
	if err != nil || !found {
		return "", ErrArchiveNotFound
	}
	return path, nil
}

// удаляет архивы, созданные раньше now-ttl, возвращает количество удалённых
func (s *archiveStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	var expired []string
	for path, created := range s.archives {
		if now.Sub(created) > s.ttl {
			expired = append(expired, path)
			delete(s.archives, path)
		}
	}
	s.mu.Unlock()
	for _, path := range expired {
		if err := os.RemoveAll(filepath.Dir(path)); err != nil {
			log.Warnf("can't remove archive %s: %v", path, err)
		}
	}
	return len(expired)
}

// запуск периодического удаления
func (s *archiveStore) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cleanupTicker.Start()
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				if removed := s.Cleanup(time.Now()); removed > 0 {
					printLog("removed archives:", removed)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// остановка удаления; оставшиеся архивы удаляются сразу
func (s *archiveStore) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			s.cleanupTicker.Stop()
		}
		close(s.stop)
		s.Cleanup(time.Now().Add(s.ttl + time.Second))
	})
}

// запись файла платы в архив, имя очищается от абсолютных путей и ".."
func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	entryName := zipEntryName(name)
	if entryName == "" {
		return fmt.Errorf("%w: %q", ErrBadFilename, name)
	}
	entry, err := zw.Create(entryName)
	if err != nil {
		return err
	}
	_, err = entry.Write(data)
	return err
}

// exists returns whether the given file or directory exists
func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
