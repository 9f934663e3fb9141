package main

import (
	_ "embed"
	"encoding/json"
	"strings"
)

//go:embed device_list.JSON
var boardTemplatesRaw []byte

// шаблон описания известного USB-преобразователя или платы
type BoardTemplate struct {
	VendorIDs  []string `json:"vendorIDs"`
	ProductIDs []string `json:"productIDs"`
	Name       string   `json:"name"`
}

// загрузка шаблонов устройств
func loadTemplatesFromRaw(raw []byte) ([]BoardTemplate, error) {
	var templates []BoardTemplate
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// находит шаблон по VID и PID, регистр не учитывается
func findTemplate(templates []BoardTemplate, vid string, pid string) *BoardTemplate {
	for i, template := range templates {
		for _, templateVID := range template.VendorIDs {
			if !strings.EqualFold(templateVID, vid) {
				continue
			}
			for _, templatePID := range template.ProductIDs {
				if strings.EqualFold(templatePID, pid) {
					return &templates[i]
				}
			}
		}
	}
	return nil
}
