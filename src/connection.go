// описание подключения к плате
package main

import (
	"encoding/json"
	"fmt"
)

type ConnectionType string

// типы подключения
const (
	// FTP для файлов и telnet для REPL
	WifiConnection ConnectionType = "wifi"
	// последовательный порт
	SerialConnection ConnectionType = "serial"
)

const (
	defaultBaudrate = 115200
	defaultUsername = "micro"
	defaultPassword = "python"
)

type WifiConfig struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SerialConfig struct {
	Port string `json:"port"`
	// nil соответствует NaN, который клиент получает из пустого или неверного поля
	Baudrate *int `json:"baudrate"`
}

// Connection описывает, как достучаться до платы: по сети или через последовательный порт.
// Используется только одна из конфигураций, в зависимости от Type.
type Connection struct {
	Type   ConnectionType
	Wifi   WifiConfig
	Serial SerialConfig
}

// плоское представление, в котором подключение передаётся в HTTP-запросах
type flatConnection struct {
	Type     ConnectionType `json:"type"`
	Address  string         `json:"address,omitempty"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Port     *string        `json:"port,omitempty"`
	Baudrate *int           `json:"baudrate,omitempty"`
}

func NewWifiConnection(address, username, password string) Connection {
	return Connection{
		Type: WifiConnection,
		Wifi: WifiConfig{Address: address, Username: username, Password: password},
	}
}

func NewSerialConnection(port string, baudrate *int) Connection {
	return Connection{
		Type:   SerialConnection,
		Serial: SerialConfig{Port: port, Baudrate: baudrate},
	}
}

// config возвращает конфигурацию, соответствующую типу подключения
func (c Connection) config() any {
	switch c.Type {
	case WifiConnection:
		return c.Wifi
	case SerialConnection:
		return c.Serial
	}
	return struct{}{}
}

func (c Connection) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case WifiConnection:
		return json.Marshal(struct {
			Type ConnectionType `json:"type"`
			WifiConfig
		}{c.Type, c.Wifi})
	case SerialConnection:
		return json.Marshal(struct {
			Type ConnectionType `json:"type"`
			SerialConfig
		}{c.Type, c.Serial})
	}
	return json.Marshal(struct {
		Type ConnectionType `json:"type"`
	}{c.Type})
}

func (c *Connection) UnmarshalJSON(data []byte) error {
	var flat flatConnection
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*c = Connection{Type: flat.Type}
	switch flat.Type {
	case WifiConnection:
		c.Wifi = WifiConfig{Address: flat.Address, Username: flat.Username, Password: flat.Password}
	case SerialConnection:
		if flat.Port != nil {
			c.Serial.Port = *flat.Port
		}
		c.Serial.Baudrate = flat.Baudrate
	}
	return nil
}

// проверка обязательных полей
func (c Connection) Validate() error {
	switch c.Type {
	case WifiConnection:
		if c.Wifi.Address == "" {
			return ErrNoAddress
		}
	case SerialConnection:
		if c.Serial.Port == "" {
			return ErrNoPort
		}
	default:
		return ErrUnknownConnectionType
	}
	return nil
}

// возвращает копию, в которой пустые необязательные поля заменены значениями по умолчанию
func (c Connection) withDefaults() Connection {
	switch c.Type {
	case WifiConnection:
		if c.Wifi.Username == "" {
			c.Wifi.Username = defaultUsername
		}
		if c.Wifi.Password == "" {
			c.Wifi.Password = defaultPassword
		}
	case SerialConnection:
		if c.Serial.Baudrate == nil || *c.Serial.Baudrate <= 0 {
			baud := defaultBaudrate
			c.Serial.Baudrate = &baud
		}
	}
	return c
}

// скорость передачи, либо стандартная, если не указана
func (c Connection) baudrate() int {
	if c.Serial.Baudrate == nil || *c.Serial.Baudrate <= 0 {
		return defaultBaudrate
	}
	return *c.Serial.Baudrate
}

// Key однозначно определяет плату; на одну плату приходится не больше одной консоли
func (c Connection) Key() string {
	switch c.Type {
	case WifiConnection:
		return "wifi:" + c.Wifi.Address
	case SerialConnection:
		return "serial:" + c.Serial.Port
	}
	return string(c.Type)
}

func (c Connection) String() string {
	switch c.Type {
	case WifiConnection:
		return fmt.Sprintf("wifi %s@%s", c.Wifi.Username, c.Wifi.Address)
	case SerialConnection:
		return fmt.Sprintf("serial %s (%d)", c.Serial.Port, c.baudrate())
	}
	return fmt.Sprintf("unknown connection %q", string(c.Type))
}

// первое сообщение, которое клиент отправляет по веб-сокету /repl
type ReplHello struct {
	Type   ConnectionType  `json:"type"`
	Config json.RawMessage `json:"config"`
}

func (c Connection) Hello() ([]byte, error) {
	config, err := json.Marshal(c.config())
	if err != nil {
		return nil, err
	}
	return json.Marshal(ReplHello{Type: c.Type, Config: config})
}

// разбор первого сообщения веб-сокета
func parseHello(data []byte) (Connection, error) {
	var hello ReplHello
	if err := json.Unmarshal(data, &hello); err != nil {
		return Connection{}, fmt.Errorf("%w: %v", ErrBadHello, err)
	}
	if hello.Type == "" {
		return Connection{}, ErrBadHello
	}
	conn := Connection{Type: hello.Type}
	if len(hello.Config) == 0 || string(hello.Config) == "null" {
		return conn, nil
	}
	var err error
	switch hello.Type {
	case WifiConnection:
		err = json.Unmarshal(hello.Config, &conn.Wifi)
	case SerialConnection:
		err = json.Unmarshal(hello.Config, &conn.Serial)
	default:
		return conn, ErrUnknownConnectionType
	}
	if err != nil {
		return Connection{}, fmt.Errorf("%w: %v", ErrBadHello, err)
	}
	return conn, nil
}
