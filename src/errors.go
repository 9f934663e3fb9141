package main

import (
	"errors"
	"strings"
)

// сообщения-ошибки для клиента
var (
	// неизвестный тип подключения
	ErrUnknownConnectionType = errors.New("Unknown connection type")
	// для последовательного порта не указано имя порта
	ErrNoPort = errors.New("serial port is not selected")
	// для wifi не указан адрес платы
	ErrNoAddress = errors.New("board address is empty")
	// не выбрано ни одного файла для загрузки
	ErrNoFiles = errors.New("No files selected")
	// первое сообщение по веб-сокету не является описанием подключения
	ErrBadHello = errors.New("first message must describe the connection")
	// плата не ответила за отведённое время
	ErrDeviceTimeout = errors.New("device did not answer in time")
	// плата не вошла в режим raw REPL
	ErrRawREPL = errors.New("could not enter raw REPL")
	// неверный ответ платы на выполнение кода
	ErrRawREPLResponse = errors.New("unexpected raw REPL response")
	// telnet: неверное имя пользователя или пароль
	ErrLoginFailed = errors.New("telnet login failed")
	// архив не найден или устарел
	ErrArchiveNotFound = errors.New("File not found")
	// имя файла нельзя использовать в архиве
	ErrBadFilename = errors.New("bad file name")
	// файл не найден на фальшивой плате
	ErrFakeNoFile = errors.New("no such file")
	// консоль этой платы открыта в другой сессии
	ErrSessionReplaced = errors.New("console was opened by another session")
	// плата закрыла консоль
	ErrConsoleClosed = errors.New("board closed the console")
	// операция требует открытой консоли
	ErrNotConnected = errors.New("not connected to board REPL")
)

// исключение, возникшее при выполнении кода на плате
type DeviceError struct {
	// traceback, напечатанный платой
	Traceback string
}

func (e *DeviceError) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Traceback), "\n")
	// последняя строка traceback содержит тип и текст исключения
	return "device exception: " + strings.TrimSpace(lines[len(lines)-1])
}
