package main

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"
)

// описание последовательного порта для клиента
type PortInfo struct {
	Device      string `json:"device"`
	Description string `json:"description"`
	HWID        string `json:"hwid"`
}

// возвращает список доступных портов
type PortLister func() ([]PortInfo, error)

// поиск портов с помощью enumerator, к ним добавляются фальшивые платы
func newPortLister(templates []BoardTemplate) PortLister {
	return func() ([]PortInfo, error) {
		details, err := enumerator.GetDetailedPortsList()
		if err != nil {
			return nil, err
		}
		ports := describePorts(details, templates)
		ports = append(ports, fakeBoards.ports()...)
		return ports, nil
	}
}

func describePorts(details []*enumerator.PortDetails, templates []BoardTemplate) []PortInfo {
	ports := make([]PortInfo, 0, len(details))
	for _, detail := range details {
		if detail == nil {
			continue
		}
		ports = append(ports, describePort(*detail, templates))
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Device < ports[j].Device })
	return ports
}

func describePort(detail enumerator.PortDetails, templates []BoardTemplate) PortInfo {
	port := PortInfo{
		Device:      detail.Name,
		Description: "n/a",
		HWID:        "n/a",
	}
	if !detail.IsUSB {
		return port
	}
	port.HWID = fmt.Sprintf("USB VID:PID=%s:%s", strings.ToUpper(detail.VID), strings.ToUpper(detail.PID))
	if detail.SerialNumber != "" {
		port.HWID += " SER=" + detail.SerialNumber
	}
	if detail.Product != "" {
		port.Description = detail.Product
	} else if template := findTemplate(templates, detail.VID, detail.PID); template != nil {
		port.Description = template.Name
	} else {
		log.Tracef("unknown usb device %s:%s on %s", detail.VID, detail.PID, detail.Name)
	}
	return port
}
