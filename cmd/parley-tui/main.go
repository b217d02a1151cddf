// ABOUTME: Terminal client for parley: streams chat responses into the terminal
// ABOUTME: Provides readline-style input, conversation commands, and colorized output

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/backend"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/convo"
	"github.com/2389/parley/internal/engine"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/transcript"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _
 _ __   __ _ _ __ ___| | ___ _   _
| '_ \ / _' | '__/ __| |/ _ \ | | |
| |_) | (_| | |  \__ \ |  __/ |_| |
| .__/ \__,_|_|  |___/_|\___|\__, |
|_|                          |___/
`

// getConfigPath returns the path to the parley config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/parley.yaml > ~/.config/parley/parley.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "parley.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "parley.yaml")
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// runInit writes a starter config file for new installs.
func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := `backend:
  base_url: https://api.dify.ai/v1
  app_id: your-app-id
  api_key: ${PARLEY_API_KEY}
  request_timeout: 30s
database:
  path: ~/.local/share/parley/parley.db
logging:
  level: info
  format: text
`
	if err := os.WriteFile(path, []byte(starter), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("Wrote starter config to %s\n", path)
	fmt.Println("Edit it, export PARLEY_API_KEY, then run parley-tui again.")
	return nil
}

func run(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	profile, err := loadProfile()
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}
	if !profile.Color {
		color.NoColor = true
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("App:     %s\n", cfg.Backend.AppID)
	fmt.Println()

	dbPath := expandHome(cfg.Database.Path)
	localState, err := store.NewLocalState(dbPath)
	if err != nil {
		return fmt.Errorf("opening local state: %w", err)
	}
	defer localState.Close()

	client := backend.NewClient(cfg.Backend, profile.User, logger)
	convos := convo.NewStore(cfg.Backend.AppID, localState, logger)
	e := engine.New(client, convos, newConsoleNotifier(), logger)
	defer e.Close()

	if err := e.Init(ctx); err != nil {
		return fmt.Errorf("initializing: %w", err)
	}

	printIntro(e)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	return loop(ctx, e, profile)
}

func loop(ctx context.Context, e *engine.Engine, profile *Profile) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		printPrompt(e)

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			e.Cancel()
			e.Wait()
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(ctx, e, profile, input)
			if err != nil {
				color.Red("[error] %v", err)
			}
			if quit {
				return nil
			}
			fmt.Println()
			continue
		}

		if err := e.Send(ctx, input, nil); err != nil {
			// Notices already explain rejected sends.
			continue
		}
		streamResponse(ctx, e)
		fmt.Println()
	}
}

func handleCommand(ctx context.Context, e *engine.Engine, profile *Profile, input string) (quit bool, err error) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		e.Cancel()
		e.Wait()
		return true, nil

	case "/help":
		printHelp()

	case "/conversations", "/list":
		printConversations(e)

	case "/switch":
		if args == "" {
			return false, fmt.Errorf("usage: /switch <number|id>")
		}
		id := resolveConversation(e, args)
		if err := e.SwitchConversation(ctx, id); err != nil {
			return false, err
		}
		printTranscript(e)

	case "/new":
		if err := e.StartNew(ctx, e.CurrentInputsForNew()); err != nil {
			return false, err
		}
		printIntro(e)

	case "/set":
		key, value, ok := strings.Cut(args, " ")
		if !ok {
			return false, fmt.Errorf("usage: /set <variable> <value>")
		}
		inputs := e.CurrentInputsForNew()
		if inputs == nil {
			inputs = convo.Inputs{}
		}
		inputs[key] = convo.Value{Kind: convo.ValueText, Text: strings.TrimSpace(value)}
		e.SetNewConversationInputs(inputs)
		fmt.Printf("Set %s\n", key)

	case "/inputs":
		printInputForm(e)

	case "/cancel":
		if !e.IsResponding() {
			fmt.Println("Nothing to cancel")
			break
		}
		e.Cancel()
		e.Wait()
		fmt.Println("Cancelled")

	case "/feedback":
		messageID, rating, ok := strings.Cut(args, " ")
		if !ok || (rating != "like" && rating != "dislike") {
			return false, fmt.Errorf("usage: /feedback <message-id> <like|dislike>")
		}
		if err := e.SubmitFeedback(ctx, messageID, rating); err != nil {
			return false, err
		}

	case "/export":
		path := args
		if path == "" {
			path = defaultExportPath(e, profile)
		}
		if err := exportTranscript(e, path); err != nil {
			return false, err
		}
		fmt.Printf("Exported to %s\n", path)

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations      List known conversations")
	fmt.Println("  /switch <n|id>      Switch to a conversation")
	fmt.Println("  /new                Start a new conversation")
	fmt.Println("  /set <var> <value>  Set an input variable for the next new conversation")
	fmt.Println("  /inputs             Show the app's input variable form")
	fmt.Println("  /cancel             Cancel the in-flight response")
	fmt.Println("  /feedback <id> <like|dislike>  Rate a finalized answer")
	fmt.Println("  /export [path]      Export the transcript as HTML")
	fmt.Println("  /help               Show this help")
	fmt.Println("  /quit               Exit")
}

func printPrompt(e *engine.Engine) {
	name := "new"
	if current := e.CurrentConversation(); current != nil {
		name = current.Name
	}
	color.New(color.FgCyan).Printf("[%s]", truncate(name, 24))
	fmt.Print("> ")
}

func printConversations(e *engine.Engine) {
	conversations := e.Conversations()
	if len(conversations) == 0 {
		fmt.Println("No conversations yet")
		return
	}
	current := ""
	if c := e.CurrentConversation(); c != nil {
		current = c.ID
	}
	for i, c := range conversations {
		marker := "  "
		if c.ID == current {
			marker = color.GreenString("* ")
		}
		name := c.Name
		if c.ID == convo.SentinelID {
			name += color.HiBlackString(" (unsaved)")
		}
		fmt.Printf("%s%2d. %s\n", marker, i+1, name)
	}
}

// resolveConversation accepts either a 1-based list index or a raw id.
func resolveConversation(e *engine.Engine, arg string) string {
	if n, err := strconv.Atoi(arg); err == nil {
		conversations := e.Conversations()
		if n >= 1 && n <= len(conversations) {
			return conversations[n-1].ID
		}
	}
	return arg
}

func printInputForm(e *engine.Engine) {
	vars := e.PromptVariables()
	if len(vars) == 0 {
		fmt.Println("This app declares no input variables")
		return
	}
	for _, v := range vars {
		name := v.Name
		if name == "" {
			name = v.Key
		}
		req := ""
		if v.Required {
			req = color.YellowString(" (required)")
		}
		fmt.Printf("  %s  {{%s}}%s\n", name, v.Key, req)
	}
}

func printIntro(e *engine.Engine) {
	for _, entry := range e.Snapshot() {
		if !entry.IsOpeningStatement {
			continue
		}
		color.New(color.FgGreen).Print("assistant: ")
		fmt.Println(entry.Content)
		for _, q := range entry.SuggestedQuestions {
			color.New(color.FgHiBlack).Printf("  try: %s\n", q)
		}
	}
}

func printTranscript(e *engine.Engine) {
	for _, entry := range e.Snapshot() {
		switch {
		case entry.IsOpeningStatement:
			color.New(color.FgGreen).Print("assistant: ")
			fmt.Println(entry.Content)
		case entry.Role == transcript.RoleQuestion:
			color.New(color.FgBlue).Print("you: ")
			fmt.Println(entry.Content)
		default:
			color.New(color.FgGreen).Print("assistant: ")
			fmt.Println(entry.Content)
			for _, thought := range entry.AgentThoughts {
				color.New(color.FgHiBlack).Printf("  [thought] %s\n", truncate(thought.Thought, 80))
			}
			if entry.Feedback != nil {
				color.New(color.FgHiBlack).Printf("  [rated %s]\n", entry.Feedback.Rating)
			}
			color.New(color.FgHiBlack).Printf("  id: %s\n", entry.ID)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// consoleNotifier prints engine notices with a color per kind.
type consoleNotifier struct {
	mu sync.Mutex
}

func newConsoleNotifier() *consoleNotifier {
	return &consoleNotifier{}
}

func (n *consoleNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	color.Green("[ok] %s", message)
}

func (n *consoleNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	color.Red("[error] %s", message)
}

func (n *consoleNotifier) Info(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	color.Yellow("[info] %s", message)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	// Text logs go to stderr so they never interleave with the chat.
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
