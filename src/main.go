package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// время на завершение активных запросов при остановке
const shutdownTimeout = 5 * time.Second

func main() {
	setArgs()
	setupLogger()

	if genHashPassword != "" {
		hash, err := hashPassword(genHashPassword)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(hash)
		return
	}

	if consoleURL != "" {
		if err := runConsoleClient(consoleURL); err != nil {
			log.Fatal(err)
		}
		return
	}

	printArgsDesc()
	fakeBoards.generate(fakeBoardsNum)

	templates, err := loadTemplatesFromRaw(boardTemplatesRaw)
	if err != nil {
		log.Fatalf("can't load board templates: %v", err)
	}
	boards := NewBoardManager()
	if err := boards.LoadPymakr(pymakrPath); err != nil {
		log.Warnf("can't load %s: %v", pymakrPath, err)
	}
	faq, err := loadFAQ(faqRaw)
	if err != nil {
		log.Fatalf("can't load FAQ: %v", err)
	}
	var auth *basicAuth
	if authUser != "" && authHash != "" {
		auth = newBasicAuth(authUser, authHash)
	}

	archives := newArchiveStore("", archiveTTL, cleanupTime)
	archives.Start()

	config := ServerConfig{
		MaxFileSize: int64(maxFileSize),
		MaxMsgSize:  maxMsgSize,
		Device: DeviceConfig{
			Timeout:    deviceTimeout,
			FTPPort:    ftpPort,
			TelnetPort: telnetPort,
		},
	}
	srv := NewServer(
		config,
		newDeviceOpener(config.Device),
		newPortLister(templates),
		archives,
		boards,
		faq,
		auth,
	)
	httpServer := &http.Server{
		Addr:    webAddress,
		Handler: srv,
	}

	go func() {
		log.Infof("Listening on http://%s", webAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// веб-сокеты не отслеживаются Shutdown, их закрывает сервер
	srv.Close()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
