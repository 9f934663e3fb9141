// консольный клиент: те же действия, что и на веб-странице
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/chzyer/readline"
)

// имя архива, в который консольный клиент сохраняет скачанные файлы
const localArchiveName = "downloaded_files.zip"

const consoleHelp = `Commands:
  :connect            choose the board and open the REPL again
  :upload FILE...     upload local files to the board
  :download NAME...   download files from the board into ` + localArchiveName + `
  :files              list files on the board
  :ports              list serial ports
  :faq [QUERY]        search the FAQ
  :clear              clear the console log
  :quit               exit
Ctrl+C interrupts the running program, Ctrl+D makes a soft reset.
Any other line is sent to the board REPL.
`

type consoleCLI struct {
	client *Client
	rl     *readline.Instance
	out    *switchWriter
}

// вывод консоли идёт через readline, а пока задаются вопросы - прямо в stdout
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func newReadline() (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "^D",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(":connect"),
			readline.PcItem(":upload"),
			readline.PcItem(":download"),
			readline.PcItem(":files"),
			readline.PcItem(":ports"),
			readline.PcItem(":faq"),
			readline.PcItem(":clear"),
			readline.PcItem(":quit"),
		),
	})
}

func runConsoleClient(serverURL string) error {
	password := ""
	if authUser != "" {
		if err := survey.AskOne(&survey.Password{Message: "Password for " + authUser + ":"}, &password); err != nil {
			return err
		}
	}
	client, err := NewClient(serverURL, authUser, password)
	if err != nil {
		return err
	}
	cli := &consoleCLI{client: client, out: &switchWriter{w: os.Stdout}}
	client.Console.SetOutputHandler(func(text string) {
		fmt.Fprint(cli.out, text)
	})
	defer client.Console.Close()

	fmt.Fprint(cli.out, consoleHelp)
	if err := cli.connect(context.Background()); err != nil {
		fmt.Fprintln(cli.out, "Error:", err)
	}
	cli.rl, err = newReadline()
	if err != nil {
		return err
	}
	cli.out.set(cli.rl.Stdout())
	defer func() { cli.rl.Close() }()
	return cli.loop()
}

func (cli *consoleCLI) loop() error {
	for {
		line, err := cli.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			cli.control(cli.client.Console.Interrupt())
			continue
		case errors.Is(err, io.EOF):
			cli.control(cli.client.Console.SoftReset())
			continue
		case err != nil:
			return err
		}
		if !strings.HasPrefix(line, ":") {
			cli.control(cli.client.Console.Send(line))
			continue
		}
		if quit := cli.command(line); quit {
			return nil
		}
	}
}

func (cli *consoleCLI) control(err error) {
	if errors.Is(err, ErrNotConnected) {
		fmt.Fprintln(cli.out, "REPL is not connected, use :connect")
	}
}

func (cli *consoleCLI) printStatus(status Status) {
	mark := "ok"
	if !status.OK {
		mark = "error"
	}
	fmt.Fprintf(cli.out, "[%s] %s\n", mark, status.Text)
}

// выполняет команду, возвращает true для :quit
func (cli *consoleCLI) command(line string) bool {
	ctx := context.Background()
	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case ":quit":
		return true
	case ":connect":
		// readline читает stdin в своей горутине и мешает вопросам survey
		cli.rl.Close()
		cli.out.set(os.Stdout)
		if err := cli.connect(ctx); err != nil {
			fmt.Fprintln(cli.out, "Error:", err)
		}
		rl, err := newReadline()
		if err != nil {
			fmt.Fprintln(cli.out, "Error:", err)
			return true
		}
		cli.rl = rl
		cli.out.set(rl.Stdout())
	case ":upload":
		cli.printStatus(cli.client.Upload(ctx, args))
	case ":download":
		if len(args) == 0 {
			cli.printStatus(Status{OK: false, Text: ErrNoFiles.Error()})
			break
		}
		cli.printStatus(cli.client.Download(ctx, args, localArchiveName))
	case ":files":
		names, err := cli.client.Files(ctx)
		if err != nil {
			fmt.Fprintln(cli.out, "Error:", err)
			break
		}
		for _, name := range names {
			fmt.Fprintln(cli.out, " ", name)
		}
	case ":ports":
		ports, err := cli.client.SerialPorts(ctx)
		if err != nil {
			fmt.Fprintln(cli.out, "Error:", err)
			break
		}
		for _, port := range ports {
			fmt.Fprintf(cli.out, "  %s (%s) %s\n", port.Device, port.Description, port.HWID)
		}
	case ":faq":
		items, err := cli.client.FAQ(ctx, strings.Join(args, " "))
		if err != nil {
			fmt.Fprintln(cli.out, "Error:", err)
			break
		}
		for _, item := range items {
			fmt.Fprintf(cli.out, "%d. %s\n   %s\n", item.ID, item.Question, item.Answer)
		}
	case ":clear":
		cli.client.Console.Clear()
		fmt.Fprint(cli.out, "\033[H\033[2J")
	default:
		fmt.Fprint(cli.out, consoleHelp)
	}
	return false
}

// заполнение формы подключения вопросами и открытие консоли
func (cli *consoleCLI) connect(ctx context.Context) error {
	form := cli.client.Form
	var kind string
	err := survey.AskOne(&survey.Select{
		Message: "Connection type:",
		Options: []string{string(WifiConnection), string(SerialConnection)},
		Default: string(form.Active()),
	}, &kind)
	if err != nil {
		return translateSurveyErr(err)
	}
	form.Select(ConnectionType(kind))

	if form.IsActive(WifiConnection) {
		questions := []*survey.Question{
			{Name: "address", Prompt: &survey.Input{Message: "Board address:", Default: form.Address}, Validate: survey.Required},
			{Name: "username", Prompt: &survey.Input{Message: "Username:", Default: form.Username}},
			{Name: "password", Prompt: &survey.Password{Message: "Password (empty for default):"}},
		}
		answers := struct {
			Address  string
			Username string
			Password string
		}{}
		if err := survey.Ask(questions, &answers); err != nil {
			return translateSurveyErr(err)
		}
		form.Address = answers.Address
		form.Username = answers.Username
		if answers.Password != "" {
			form.Password = answers.Password
		}
	} else {
		if err := cli.askSerial(ctx, form); err != nil {
			return err
		}
	}

	status := cli.client.Connect(ctx)
	cli.printStatus(status)
	return nil
}

func (cli *consoleCLI) askSerial(ctx context.Context, form *ConnectionForm) error {
	ports, err := cli.client.SerialPorts(ctx)
	if err != nil {
		return err
	}
	options := make([]string, 0, len(ports)+1)
	for _, port := range ports {
		options = append(options, fmt.Sprintf("%s (%s)", port.Device, port.Description))
	}
	form.Port = ""
	if len(options) > 0 {
		var choice string
		if err := survey.AskOne(&survey.Select{Message: "Serial port:", Options: options}, &choice); err != nil {
			return translateSurveyErr(err)
		}
		for i, option := range options {
			if option == choice {
				form.Port = ports[i].Device
			}
		}
	} else {
		fmt.Fprintln(cli.out, "No serial ports found")
	}
	return translateSurveyErr(survey.AskOne(&survey.Input{Message: "Baud rate:", Default: form.Baudrate}, &form.Baudrate))
}

// Ctrl+C во время вопроса отменяет подключение, но не завершает клиент
func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errors.New("cancelled")
	}
	return err
}
