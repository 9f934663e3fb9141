package main

import (
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// адрес на котором будет работать этот сервер
var webAddress string

// максмальный размер одного сообщения, передаваемого через веб-сокеты (в байтах)
var maxMsgSize int

// максимальный размер файлов, загружаемых на сервер за один запрос (в байтах)
var maxFileSize int

// выводить в консоль подробную информацию
var verbose bool

// количество ненастоящих, симулируемых плат, которые будут восприниматься как настоящие, применяется для тестирования
var fakeBoardsNum int

// путь к файлу pymakr.conf с описанием платы текущего проекта
var pymakrPath string

// сколько времени хранится архив со скачанными файлами
var archiveTTL time.Duration

// промежуток времени между удалениями устаревших архивов
var cleanupTime time.Duration

// порты FTP и telnet на плате
var ftpPort int
var telnetPort int

// таймаут сетевых операций с платой
var deviceTimeout time.Duration

// логин и bcrypt-хэш пароля для доступа к API, проверка отключена, если пусто
var authUser string
var authHash string

// если не пусто, то напечатать bcrypt-хэш этого пароля и выйти
var genHashPassword string

// адрес сервера, к которому подключается консольный клиент; пусто - запуск сервера
var consoleURL string

// чтение флагов и присвоение им стандартных значений
func setArgs() {
	flag.StringVar(&webAddress, "address", "localhost:5000", "адрес для подключения")
	flag.IntVar(&maxMsgSize, "msgSize", 4096, "максимальный размер одного сообщения, передаваемого через веб-сокеты (в байтах)")
	flag.IntVar(&maxFileSize, "fileSize", 3*1024*1024, "максимальный размер файлов, загружаемых на сервер за один запрос (в байтах)")
	flag.IntVar(&fakeBoardsNum, "stub", 0, "количество ненастоящих, симулируемых плат, которые будут восприниматься как настоящие, применяется для тестирования")
	flag.BoolVar(&verbose, "verbose", false, "выводить в консоль подробную информацию")
	flag.StringVar(&pymakrPath, "pymakr", "../pymakr.conf", "путь к файлу pymakr.conf")
	flag.IntVar(&ftpPort, "ftpPort", 21, "порт FTP-сервера на плате")
	flag.IntVar(&telnetPort, "telnetPort", 23, "порт telnet REPL на плате")
	flag.StringVar(&authUser, "authUser", "", "имя пользователя для доступа к API")
	flag.StringVar(&authHash, "authHash", "", "bcrypt-хэш пароля для доступа к API")
	flag.StringVar(&genHashPassword, "genHash", "", "напечатать bcrypt-хэш пароля и выйти")
	flag.StringVar(&consoleURL, "console", "", "адрес сервера (например, http://localhost:5000), запускает консольный клиент вместо сервера")
	archiveTTLMinutes := flag.Int("archiveTTL", 30, "сколько минут хранится архив со скачанными файлами")
	cleanupSeconds := flag.Int("cleanup", 60, "количество секунд между удалениями устаревших архивов")
	timeoutSeconds := flag.Int("timeout", 10, "таймаут (в секундах) сетевых операций с платой")
	flag.Parse()
	archiveTTL = time.Minute * time.Duration(*archiveTTLMinutes)
	cleanupTime = time.Second * time.Duration(*cleanupSeconds)
	deviceTimeout = time.Second * time.Duration(*timeoutSeconds)
}

// вывод описания всех параметров с их значениями
func printArgsDesc() {
	webAddressStr := fmt.Sprintf("адрес: %s", webAddress)
	maxFileSizeStr := fmt.Sprintf("максимальный размер загрузки: %d", maxFileSize)
	maxMsgSizeStr := fmt.Sprintf("максимальный размер сообщения: %d", maxMsgSize)
	verboseStr := fmt.Sprintf("вывод подробной информации в консоль: %v", verbose)
	fakeBoardsNumStr := fmt.Sprintf("количество фальшивых плат: %d", fakeBoardsNum)
	pymakrStr := fmt.Sprintf("файл pymakr.conf: %s", pymakrPath)
	archiveStr := fmt.Sprintf("время хранения архивов: %v (проверка каждые %v)", archiveTTL, cleanupTime)
	portsStr := fmt.Sprintf("порты FTP/telnet: %d/%d", ftpPort, telnetPort)
	timeoutStr := fmt.Sprintf("таймаут операций с платой: %v", deviceTimeout)
	authStr := fmt.Sprintf("проверка доступа: %v", authUser != "")
	log.Printf("Менеджер плат запущен со следующими параметрами:\n %s\n %s\n %s\n %s\n %s\n %s\n %s\n %s\n %s\n %s\n",
		webAddressStr, maxFileSizeStr, maxMsgSizeStr, verboseStr, fakeBoardsNumStr, pymakrStr, archiveStr, portsStr, timeoutStr, authStr)
}
