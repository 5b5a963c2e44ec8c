// ABOUTME: Entry point for the nexial-gateway chat server
// ABOUTME: Subcommands to serve, write a config, manage users and probe health

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nexial/nexial-gateway/internal/auth"
	"github.com/nexial/nexial-gateway/internal/config"
	"github.com/nexial/nexial-gateway/internal/gateway"
	"github.com/nexial/nexial-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _       _
  _ __   _____  _____(_) __ _| |
 | '_ \ / _ \ \/ /_ _| |/ _' | |
 | | | |  __/>  < | || | (_| | |
 |_| |_|\___/_/\_\___|_|\__,_|_|   gateway
`

// getDataPath returns the nexial data directory.
// Priority: XDG_DATA_HOME/nexial > ~/.local/share/nexial
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "nexial")
}

func usage() {
	fmt.Println("Usage: nexial-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                   Start the gateway server")
	fmt.Println("  init                                    Create a new config file interactively")
	fmt.Println("  create-user --username U --password P   Register a user directly in the database")
	fmt.Println("  token --username U                      Issue an access token for a user")
	fmt.Println("  health                                  Check gateway health")
	fmt.Println("  ready                                   Check gateway readiness")
	fmt.Println("  version                                 Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A missing .env file is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "create-user":
		err = runCreateUser(ctx, os.Args[2:])
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "health":
		err = runProbe(ctx, "/health")
	case "ready":
		err = runProbe(ctx, "/health/ready")
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Assistant: ")
	if cfg.Assistant.Enabled() {
		cyan.Println(cfg.Assistant.Endpoint)
	} else {
		yellow.Println("disabled (no api_token)")
	}
	fmt.Println()

	logger.Info("starting nexial-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// flagValue reads "--name value" or "--name=value" from args.
func flagValue(args []string, names ...string) (string, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		for _, name := range names {
			switch {
			case arg == name:
				if i+1 >= len(args) {
					return "", fmt.Errorf("%s requires a value", name)
				}
				return args[i+1], nil
			case strings.HasPrefix(arg, name+"="):
				return strings.TrimPrefix(arg, name+"="), nil
			}
		}
	}
	return "", nil
}

func openStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, s, nil
}

// runCreateUser registers a user without going through the HTTP API and
// prints a token for them.
func runCreateUser(ctx context.Context, args []string) error {
	username, err := flagValue(args, "--username", "-u")
	if err != nil {
		return err
	}
	password, err := flagValue(args, "--password", "-p")
	if err != nil {
		return err
	}
	displayName, err := flagValue(args, "--name", "-n")
	if err != nil {
		return err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("--username is required")
	}
	if len(password) < 8 {
		return errors.New("--password must be at least 8 characters")
	}
	if displayName == "" {
		displayName = username
	}

	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created user %s\n", username)
	fmt.Printf("  ID:   %s\n", user.ID)

	return printToken(cfg, user)
}

func runToken(ctx context.Context, args []string) error {
	username, err := flagValue(args, "--username", "-u")
	if err != nil {
		return err
	}
	if username == "" {
		return errors.New("--username is required")
	}

	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no user named %q", username)
		}
		return fmt.Errorf("loading user: %w", err)
	}

	return printToken(cfg, user)
}

func printToken(cfg *config.Config, user *store.User) error {
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(user.ID, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	expiresAt := time.Now().Add(cfg.Auth.TokenTTL).UTC()
	fmt.Printf("  Token (expires %s):\n", expiresAt.Format("Jan 02, 2006 15:04 MST"))
	fmt.Println(token)
	return nil
}

// runProbe calls a health endpoint on the configured address.
func runProbe(ctx context.Context, path string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", probeAddr(cfg.Server.HTTPAddr), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// probeAddr turns a wildcard listen address into one a client can dial.
func probeAddr(listen string) string {
	switch {
	case strings.HasPrefix(listen, "0.0.0.0:"):
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	case strings.HasPrefix(listen, ":"):
		return "127.0.0.1" + listen
	default:
		return listen
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("nexial-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "nexial.db")

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8000")
	origins := prompt(reader, "Allowed browser origins (comma separated, * for any)", "http://localhost:3000")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Assistant Configuration ---")
	assistantToken := prompt(reader, "Inference API token (leave empty to disable, or ${HF_API_TOKEN})", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content := renderConfig(initAnswers{
		HTTPAddr:       httpAddr,
		Origins:        splitList(origins),
		DatabasePath:   dbPath,
		JWTSecret:      secret,
		AssistantToken: assistantToken,
		LogLevel:       logLevel,
		LogFormat:      logFormat,
	})

	// Refuse to write something serve would reject.
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	fmt.Printf("  Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Println("  nexial-gateway serve")

	return nil
}

type initAnswers struct {
	HTTPAddr       string
	Origins        []string
	DatabasePath   string
	JWTSecret      string
	AssistantToken string
	LogLevel       string
	LogFormat      string
}

func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# nexial-gateway configuration\n")
	b.WriteString("# Generated by nexial-gateway init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n", a.HTTPAddr)
	b.WriteString("  allowed_origins:\n")
	for _, o := range a.Origins {
		fmt.Fprintf(&b, "    - %q\n", o)
	}
	b.WriteString("  shutdown_timeout: \"5s\"\n\n")

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", a.DatabasePath)

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n", a.JWTSecret)
	b.WriteString("  token_ttl: \"24h\"\n\n")

	b.WriteString("chat:\n")
	b.WriteString("  max_content_length: 4000\n")
	b.WriteString("  history_limit: 500\n")
	b.WriteString("  dedupe_ttl: \"5m\"\n\n")

	b.WriteString("websocket:\n")
	b.WriteString("  write_wait: \"10s\"\n")
	b.WriteString("  pong_wait: \"60s\"\n")
	b.WriteString("  send_buffer: 128\n\n")

	b.WriteString("assistant:\n")
	fmt.Fprintf(&b, "  endpoint: %q\n", config.DefaultAssistantEndpoint)
	fmt.Fprintf(&b, "  api_token: %q\n", a.AssistantToken)
	b.WriteString("  timeout: \"30s\"\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n", a.LogFormat)

	return b.String()
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
