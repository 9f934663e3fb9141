package main

import (
	stdlog "log"
	"strings"

	log "github.com/sirupsen/logrus"
)

// настройка logrus и перенаправление стандартного логгера в него
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	stdlog.SetFlags(0)
	stdlog.SetOutput(new(LogrusWriter))
}

// пишет сообщения стандартного логгера (библиотеки ftp, websocket) через logrus
type LogrusWriter int

// закрытие соединения клиентом не является ошибкой
const closedConnError = "use of closed network connection"

func (LogrusWriter) Write(data []byte) (int, error) {
	logmessage := strings.TrimRight(string(data), "\n")
	if strings.Contains(logmessage, closedConnError) {
		log.Tracef("std_logs:%s", logmessage)
		return len(data), nil
	}
	log.Infof("std_logs:%s", logmessage)
	return len(data), nil
}

// вывод подробной информации, только если указан флаг verbose
func printLog(v ...any) {
	if verbose {
		log.Debugln(v...)
	}
}
