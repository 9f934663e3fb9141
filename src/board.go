package main

import (
	"encoding/json"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// сохранённое описание платы (профиль подключения)
type BoardProfile struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Address  string         `json:"address"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	MainFile string         `json:"main_file"`
	Type     ConnectionType `json:"type"`
}

// файл pymakr.conf, который создаёт расширение Pymakr
type pymakrConfig struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	MainFile string `json:"main_file"`
}

// список профилей плат
type BoardManager struct {
	mu     sync.Mutex
	boards []BoardProfile
}

func NewBoardManager() *BoardManager {
	return &BoardManager{boards: []BoardProfile{}}
}

// загрузка платы текущего проекта из pymakr.conf, отсутствие файла не является ошибкой
func (m *BoardManager) LoadPymakr(path string) error {
	found, err := exists(path)
	if err != nil || !found {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var config pymakrConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return err
	}
	board := BoardProfile{
		ID:       "current",
		Name:     valueOr(config.Name, "Current Project"),
		Address:  config.Address,
		Username: valueOr(config.Username, defaultUsername),
		Password: valueOr(config.Password, defaultPassword),
		MainFile: valueOr(config.MainFile, "main.py"),
		Type:     WifiConnection,
	}
	m.mu.Lock()
	m.boards = append(m.boards, board)
	m.mu.Unlock()
	log.Infof("Loaded board %q from %s", board.Name, path)
	return nil
}

func (m *BoardManager) Boards() []BoardProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BoardProfile{}, m.boards...)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
