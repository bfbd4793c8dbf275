// ABOUTME: Terminal client for the support-chat gateway
// ABOUTME: Logs in, lists conversations live, and chats inside one of them

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/ycyw/support-chat/internal/client"
	"github.com/ycyw/support-chat/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: support-cli <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  login <name>              Log in and store the token")
		fmt.Println("  register <name> [--support]  Create an account")
		fmt.Println("  logout                    Forget the stored token")
		fmt.Println("  chat                      Interactive conversation browser")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(os.Getenv("SUPPORT_CLI_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app := newApp(cfg)

	switch os.Args[1] {
	case "login":
		err = app.runLogin(ctx, os.Args[2:])
	case "register":
		err = app.runRegister(ctx, os.Args[2:])
	case "logout":
		err = app.session.Logout()
	case "chat":
		err = app.runChat(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     *cliConfig
	session *client.Session
	rest    *client.RESTClient
	stdin   *bufio.Scanner
}

func newApp(cfg *cliConfig) *app {
	tokens := &client.FileTokenStore{Path: cfg.TokenPath}
	session := client.NewSession(client.NewRESTClient(cfg.Server, nil), tokens, nil)
	return &app{
		cfg:     cfg,
		session: session,
		rest:    client.NewRESTClient(cfg.Server, session.Token),
		stdin:   bufio.NewScanner(os.Stdin),
	}
}

func (a *app) runLogin(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: support-cli login <name>")
	}
	name := args[0]

	fmt.Print("Password: ")
	if !a.stdin.Scan() {
		return fmt.Errorf("no password given")
	}
	password := a.stdin.Text()

	if err := a.session.Login(ctx, name, password); err != nil {
		return err
	}
	state := a.session.State()
	color.Green("Logged in as %s (%s)", state.Name, strings.ToLower(state.Role))
	return nil
}

func (a *app) runRegister(ctx context.Context, args []string) error {
	role := store.RoleUser
	var name string
	for _, arg := range args {
		if arg == "--support" {
			role = store.RoleSupport
			continue
		}
		name = arg
	}
	if name == "" {
		return fmt.Errorf("usage: support-cli register <name> [--support]")
	}

	fmt.Print("Password: ")
	if !a.stdin.Scan() {
		return fmt.Errorf("no password given")
	}
	password := a.stdin.Text()

	creds, err := a.rest.Register(ctx, name, password, role)
	if err != nil {
		return err
	}
	color.Green("Registered %s (%s)", creds.Name, strings.ToLower(creds.Role))
	fmt.Println("Run 'support-cli login' to start a session.")
	return nil
}

// runChat is the interactive browser: a live conversation list with
// commands to open, create, and close conversations.
func (a *app) runChat(ctx context.Context) error {
	// The session outlives processes via the token file, but identity
	// details do not; re-login keeps them in sync.
	if a.session.Token() == "" {
		return fmt.Errorf("not logged in; run 'support-cli login <name>' first")
	}
	if !a.session.State().LoggedIn {
		fmt.Print("Name: ")
		if !a.stdin.Scan() {
			return fmt.Errorf("no name given")
		}
		name := a.stdin.Text()
		fmt.Print("Password: ")
		if !a.stdin.Scan() {
			return fmt.Errorf("no password given")
		}
		if err := a.session.Login(ctx, name, a.stdin.Text()); err != nil {
			return err
		}
	}

	coord := client.NewCoordinator(client.CoordinatorConfig{
		Endpoint: a.cfg.wsEndpoint(),
		REST:     a.rest,
		Session:  a.session,
		OnSendFailed: func(err error) {
			color.Red("send failed: %v", err)
		},
	})
	defer coord.Shutdown()

	list, err := coord.ShowList(ctx)
	if err != nil {
		return err
	}

	printChats(list.Chats())
	fmt.Println("Commands: /open <id>  /new <title>  /close <id>  /refresh  /quit")

	for {
		fmt.Print("> ")
		line, ok := a.readLine(ctx)
		if !ok {
			return nil
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			printChats(list.Chats())
		case line == "/quit":
			return nil
		case line == "/refresh":
			if _, err := list.Load(ctx); err != nil {
				color.Red("refresh failed: %v", err)
			}
			printChats(list.Chats())
		case strings.HasPrefix(line, "/new "):
			title := strings.TrimPrefix(line, "/new ")
			if _, err := list.Create(ctx, title); err != nil {
				color.Red("create failed: %v", err)
			}
			printChats(list.Chats())
		case strings.HasPrefix(line, "/close "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/close ")), 10, 64)
			if err != nil {
				color.Red("bad id: %v", err)
				continue
			}
			if err := list.CloseChat(ctx, id); err != nil {
				color.Red("close failed: %v", err)
			}
		case strings.HasPrefix(line, "/open "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/open ")), 10, 64)
			if err != nil {
				color.Red("bad id: %v", err)
				continue
			}
			if err := a.runConversation(ctx, coord, id); err != nil {
				color.Red("%v", err)
			}
			// Back on the list screen
			list, err = coord.ShowList(ctx)
			if err != nil {
				return err
			}
			printChats(list.Chats())
		default:
			fmt.Println("Commands: /open <id>  /new <title>  /close <id>  /refresh  /quit")
		}
	}
}

// runConversation holds one conversation open until /leave or until a
// CLOSE event arrives for it.
func (a *app) runConversation(ctx context.Context, coord *client.Coordinator, chatID int64) error {
	conv, err := coord.OpenConversation(ctx, chatID)
	if err != nil {
		return err
	}

	for _, msg := range conv.Messages() {
		printMessage(a.session.State().Name, msg)
	}
	fmt.Println("Type a message and press Enter. /leave to go back.")

	seen := len(conv.Messages())
	for {
		fmt.Print("· ")
		line, ok := a.readLine(ctx)
		if !ok || strings.TrimSpace(line) == "/leave" {
			return nil
		}
		if coord.Screen() != client.ScreenDetail {
			color.Yellow("conversation was closed")
			return nil
		}

		if strings.TrimSpace(line) != "" {
			if err := conv.Send(ctx, line); err != nil {
				color.Red("send failed: %v", err)
			}
		}

		msgs := conv.Messages()
		for ; seen < len(msgs); seen++ {
			printMessage(a.session.State().Name, msgs[seen])
		}
	}
}

// readLine reads one stdin line, returning false on EOF or cancel.
func (a *app) readLine(ctx context.Context) (string, bool) {
	lineCh := make(chan string, 1)
	go func() {
		if a.stdin.Scan() {
			lineCh <- a.stdin.Text()
		} else {
			close(lineCh)
		}
	}()
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lineCh:
		return line, ok
	}
}

func printChats(chats []store.ChatSummary) {
	if len(chats) == 0 {
		color.HiBlack("  (no open conversations)")
		return
	}
	for _, chat := range chats {
		fmt.Printf("  %s %s  %s\n",
			color.CyanString("#%d", chat.ID),
			chat.Title,
			color.HiBlackString("(%d messages)", chat.MessageCount))
	}
}

func printMessage(self string, msg client.Message) {
	name := color.YellowString(msg.Sender)
	if msg.Sender == self {
		name = color.GreenString(msg.Sender)
	}
	suffix := ""
	if msg.Provisional {
		suffix = color.HiBlackString(" (sending)")
	}
	fmt.Printf("%s: %s%s\n", name, msg.Content, suffix)
}
