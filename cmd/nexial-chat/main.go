// ABOUTME: Command-line chat client for nexial-gateway
// ABOUTME: One-shot commands plus an interactive mode with live pushes over WebSocket

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var (
	dim    = color.New(color.Faint)
	green  = color.New(color.FgGreen)
	blue   = color.New(color.FgBlue)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// tokenPath returns ~/.config/nexial/token (or the XDG equivalent).
func tokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "nexial", "token")
}

// getToken returns the JWT from NEXIAL_TOKEN or the saved token file.
func getToken() string {
	if token := os.Getenv("NEXIAL_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(token string) error {
	path := tokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(token), 0600)
}

func usage() {
	fmt.Println("Usage: nexial-chat [-server URL] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  register <username> <password>   Create an account and save its token")
	fmt.Println("  login <username> <password>      Log in and save the token")
	fmt.Println("  whoami                           Show the logged-in user")
	fmt.Println("  contacts                         List other users")
	fmt.Println("  history <username>               Show the conversation with a user")
	fmt.Println("  send <username> <message...>     Send a message")
	fmt.Println("  listen                           Print incoming messages until Ctrl+C")
	fmt.Println("  ask <question...>                Ask the assistant")
	fmt.Println("  chat                             Interactive mode")
}

func main() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("NEXIAL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	server := flag.String("server", defaultServer, "Gateway server URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newAPIClient(*server, getToken())
	if err := runCommand(ctx, client, args[0], args[1:], os.Stdin, os.Stdout); err != nil {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, c *apiClient, cmd string, args []string, in io.Reader, out io.Writer) error {
	switch cmd {
	case "register", "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: nexial-chat %s <username> <password>", cmd)
		}
		auth := c.login
		if cmd == "register" {
			auth = c.register
		}
		tok, err := auth(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if err := saveToken(tok.AccessToken); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		green.Fprintf(out, "✓ Logged in as %s\n", tok.User.Username)
		dim.Fprintf(out, "  token saved to %s (expires %s)\n", tokenPath(), tok.ExpiresAt)
		return nil

	case "whoami":
		me, err := c.me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s)\n", me.Username, me.DisplayName)
		dim.Fprintf(out, "  id: %s\n", me.ID)
		return nil

	case "contacts":
		return printContacts(ctx, c, out)

	case "history":
		if len(args) != 1 {
			return errors.New("usage: nexial-chat history <username>")
		}
		other, err := c.findContact(ctx, args[0])
		if err != nil {
			return err
		}
		return printHistory(ctx, c, other, out)

	case "send":
		if len(args) < 2 {
			return errors.New("usage: nexial-chat send <username> <message...>")
		}
		other, err := c.findContact(ctx, args[0])
		if err != nil {
			return err
		}
		msg, err := c.send(ctx, other.ID, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		green.Fprintf(out, "✓ sent to %s ", other.Username)
		dim.Fprintf(out, "(#%d)\n", msg.Position)
		return nil

	case "listen":
		ws, err := c.dial(ctx)
		if err != nil {
			return err
		}
		defer ws.Close()
		dim.Fprintln(out, "Listening for messages. Ctrl+C to stop.")
		return listen(ctx, ws, newNameCache(c), out)

	case "ask":
		if len(args) == 0 {
			return errors.New("usage: nexial-chat ask <question...>")
		}
		reply, err := c.ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		blue.Fprint(out, "assistant: ")
		fmt.Fprintln(out, reply)
		return nil

	case "chat":
		return runInteractive(ctx, c, in, out)

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printContacts(ctx context.Context, c *apiClient, out io.Writer) error {
	contacts, err := c.contacts(ctx)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		fmt.Fprintln(out, "No other users yet")
		return nil
	}
	for _, ct := range contacts {
		marker := "  "
		if ct.HasConversation {
			marker = "• "
		}
		fmt.Fprintf(out, "%s%-20s %s\n", marker, ct.Username, ct.DisplayName)
	}
	return nil
}

func printHistory(ctx context.Context, c *apiClient, other *contact, out io.Writer) error {
	hist, err := c.history(ctx, other.ID, 0)
	if err != nil {
		return err
	}
	if len(hist.Messages) == 0 {
		fmt.Fprintf(out, "No messages with %s yet\n", other.Username)
		return nil
	}

	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, m := range hist.Messages {
		printMessage(out, m, other)
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))
	return nil
}

func printMessage(out io.Writer, m message, other *contact) {
	ts := m.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
		ts = t.Local().Format("Jan 02 15:04")
	}
	dim.Fprintf(out, "%s ", ts)
	if m.SenderID == other.ID {
		blue.Fprintf(out, "%s: ", other.Username)
	} else {
		green.Fprint(out, "you: ")
	}
	fmt.Fprintln(out, m.Content)
}

// nameCache maps user ids to usernames for printing pushes.
type nameCache struct {
	mu     sync.Mutex
	client *apiClient
	names  map[string]string
}

func newNameCache(c *apiClient) *nameCache {
	return &nameCache{client: c, names: make(map[string]string)}
}

func (n *nameCache) lookup(ctx context.Context, id string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if name, ok := n.names[id]; ok {
		return name
	}
	if contacts, err := n.client.contacts(ctx); err == nil {
		for _, ct := range contacts {
			n.names[ct.ID] = ct.Username
		}
	}
	if name, ok := n.names[id]; ok {
		return name
	}
	return id
}

// listen prints server events until the socket closes or ctx is done.
func listen(ctx context.Context, ws *websocket.Conn, names *nameCache, out io.Writer) error {
	go func() {
		<-ctx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	for {
		var ev serverEvent
		if err := ws.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if closeErr.Code == 4001 {
					yellow.Fprintln(out, "[disconnected: signed in from another session]")
					return nil
				}
				if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
					return nil
				}
			}
			return fmt.Errorf("reading from server: %w", err)
		}
		printEvent(ctx, ev, names, out)
	}
}

func printEvent(ctx context.Context, ev serverEvent, names *nameCache, out io.Writer) {
	switch ev.Type {
	case "new_message":
		blue.Fprintf(out, "%s: ", names.lookup(ctx, ev.SenderID))
		fmt.Fprintln(out, ev.Content)
	case "message_sent":
		dim.Fprintf(out, "[sent #%d]\n", ev.Sent.Position)
	case "error":
		red.Fprintf(out, "[error] %s\n", ev.Error)
	}
}

// runInteractive reads lines from in. Plain text goes to the selected
// contact over the socket; lines starting with / are commands.
func runInteractive(ctx context.Context, c *apiClient, in io.Reader, out io.Writer) error {
	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	names := newNameCache(c)
	done := make(chan error, 1)
	go func() { done <- listen(ctx, ws, names, out) }()

	fmt.Fprintln(out, "Type /help for commands. Ctrl+C to quit.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var selected *contact
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch {
			case line == "/quit" || line == "/exit" || line == "/q":
				return nil
			case line == "/help":
				printInteractiveHelp(out)
			case line == "/contacts":
				if err := printContacts(ctx, c, out); err != nil {
					red.Fprintf(out, "[error] %v\n", err)
				}
			case strings.HasPrefix(line, "/use"):
				name := strings.TrimSpace(strings.TrimPrefix(line, "/use"))
				ct, err := c.findContact(ctx, name)
				if err != nil {
					red.Fprintf(out, "[error] %v\n", err)
					continue
				}
				selected = ct
				fmt.Fprintf(out, "Now talking to %s\n", ct.Username)
			case line == "/history":
				if selected == nil {
					fmt.Fprintln(out, "No contact selected. Use /use <username> first.")
					continue
				}
				if err := printHistory(ctx, c, selected, out); err != nil {
					red.Fprintf(out, "[error] %v\n", err)
				}
			case strings.HasPrefix(line, "/ask "):
				reply, err := c.ask(ctx, strings.TrimPrefix(line, "/ask "))
				if err != nil {
					red.Fprintf(out, "[error] %v\n", err)
					continue
				}
				blue.Fprint(out, "assistant: ")
				fmt.Fprintln(out, reply)
			case strings.HasPrefix(line, "/"):
				fmt.Fprintf(out, "Unknown command %s. /help lists commands.\n", line)
			default:
				if selected == nil {
					fmt.Fprintln(out, "No contact selected. Use /use <username> first.")
					continue
				}
				err := ws.WriteJSON(map[string]string{
					"type":        "send_message",
					"id":          uuid.NewString(),
					"receiver_id": selected.ID,
					"content":     line,
				})
				if err != nil {
					return fmt.Errorf("sending: %w", err)
				}
			}
		}
	}
}

func printInteractiveHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /contacts        List other users")
	fmt.Fprintln(out, "  /use <username>  Choose who plain lines are sent to")
	fmt.Fprintln(out, "  /history         Show the conversation with the selected user")
	fmt.Fprintln(out, "  /ask <question>  Ask the assistant")
	fmt.Fprintln(out, "  /help            Show this help")
	fmt.Fprintln(out, "  /quit            Exit")
}
