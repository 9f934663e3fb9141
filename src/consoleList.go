package main

import (
	"sync"
)

// открытые консоли, ключ - Connection.Key(); на одну плату не больше одной сессии
type consoleList struct {
	mu       sync.Mutex
	sessions map[string]*replSession
}

func newConsoleList() *consoleList {
	return &consoleList{sessions: make(map[string]*replSession)}
}

func (l *consoleList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// записывает новую сессию и возвращает прежнюю, если она была
func (l *consoleList) Swap(key string, session *replSession) *replSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.sessions[key]
	l.sessions[key] = session
	return previous
}

// удаляет сессию, только если она всё ещё текущая для этой платы
func (l *consoleList) Remove(key string, session *replSession) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, exists := l.sessions[key]
	if exists && current == session {
		delete(l.sessions, key)
		return true
	}
	return false
}

func (l *consoleList) Get(key string) (*replSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	session, exists := l.sessions[key]
	return session, exists
}

// закрывает все сессии, используется при остановке сервера
func (l *consoleList) CloseAll() {
	l.mu.Lock()
	sessions := make([]*replSession, 0, len(l.sessions))
	for key, session := range l.sessions {
		sessions = append(sessions, session)
		delete(l.sessions, key)
	}
	l.mu.Unlock()
	for _, session := range sessions {
		session.close()
	}
}
