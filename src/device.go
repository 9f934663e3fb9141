package main

import (
	"archive/zip"
	"context"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// файл, загружаемый на плату
type UploadFile struct {
	Name string
	Data []byte
}

// Device - плата, к которой можно подключиться одним из способов
type Device interface {
	// проверка подключения, возвращает сообщение для пользователя
	Test(ctx context.Context) (string, error)
	// загрузка файлов, возвращает имена загруженных файлов
	Upload(ctx context.Context, files []UploadFile) ([]string, error)
	// скачивание файлов в архив, возвращает имена скачанных и не скачанных файлов;
	// ошибка возвращается, только если не удалось подключиться к плате
	Download(ctx context.Context, names []string, dst *zip.Writer) (downloaded []string, failed []string, err error)
	// список файлов на плате
	List(ctx context.Context) ([]string, error)
	// открывает консоль (REPL) платы; закрытие консоли освобождает плату
	Console(ctx context.Context) (io.ReadWriteCloser, error)
}

// устройство, которое может работать через порт уже открытой консоли
type consoleSharer interface {
	// возвращает копию устройства, которая не открывает порт сама, а использует port
	throughConsole(port io.ReadWriter) Device
}

// создаёт устройство для подключения, используется обработчиками сервера
type DeviceOpener func(conn Connection) (Device, error)

// параметры подключения к платам
type DeviceConfig struct {
	// ожидание ответа платы
	Timeout    time.Duration
	FTPPort    int
	TelnetPort int
}

// стандартный способ создания устройства
func newDeviceOpener(config DeviceConfig) DeviceOpener {
	return func(conn Connection) (Device, error) {
		if err := conn.Validate(); err != nil {
			return nil, err
		}
		conn = conn.withDefaults()
		switch conn.Type {
		case SerialConnection:
			if fake, exists := fakeBoards.get(conn.Serial.Port); exists {
				return fake, nil
			}
			return newSerialDevice(conn.Serial.Port, conn.baudrate(), config.Timeout), nil
		case WifiConnection:
			return newWifiDevice(conn.Wifi, config.FTPPort, config.TelnetPort, config.Timeout), nil
		}
		return nil, ErrUnknownConnectionType
	}
}

var filenameStrip = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// очистка имени файла: остаётся только базовое имя из безопасных символов
func secureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base("/" + name)
	name = strings.Join(strings.Fields(name), "_")
	name = filenameStrip.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	return name
}

// имя записи в архиве: путь без выхода за корень архива; пустая строка, если имени нет
func zipEntryName(name string) string {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(name, "/")
}

// убирает из запроса пустые имена и имена, которые попадут в одну запись архива
func uniqueEntryNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		entry := zipEntryName(name)
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		unique = append(unique, name)
	}
	return unique
}
