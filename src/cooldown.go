package main

import (
	"sync"
	"time"
)

// минимальное время между двумя опросами системы о последовательных портах
const portListCooldown = 2 * time.Second

// Cooldown не даёт опрашивать порты чаще, чем раз в duration:
// в течение этого времени клиенты получают сохранённый список
type Cooldown struct {
	// продолжительность блокировки
	duration time.Duration
	// время последнего настоящего опроса
	lastTimeCalled time.Time
	mu             sync.Mutex
	list           PortLister
	cached         []PortInfo
	// для тестов
	now func() time.Time
}

func newCooldown(duration time.Duration, list PortLister) *Cooldown {
	return &Cooldown{
		duration: duration,
		list:     list,
		now:      time.Now,
	}
}

func (cd *Cooldown) isBlocked() bool {
	return !cd.lastTimeCalled.IsZero() && cd.now().Sub(cd.lastTimeCalled) < cd.duration
}

// список портов, повторный опрос только после окончания блокировки
func (cd *Cooldown) Ports() ([]PortInfo, error) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if cd.isBlocked() {
		return append([]PortInfo{}, cd.cached...), nil
	}
	ports, err := cd.list()
	if err != nil {
		return nil, err
	}
	cd.cached = ports
	cd.lastTimeCalled = cd.now()
	return append([]PortInfo{}, ports...), nil
}

// снять блокировку, следующий вызов Ports опросит систему
func (cd *Cooldown) unlock() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.lastTimeCalled = time.Time{}
}
