package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"anvil/agent"
	"anvil/chat"
	"anvil/config"
	"anvil/mcp"
	"anvil/provider"
	"anvil/storage"
	"anvil/tools"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitDebugLog(cfg.DataDir())

	// Crash recovery: clear whatever a previous run left behind, then
	// recreate the secure temp directory.
	if err := config.CleanupTempDir(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to cleanup old temp directory: %v", err)
	}
	if err := config.CreateTempDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create temp directory: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := config.CleanupTempDir(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to cleanup temp directory on exit: %v", err)
		}
	}()

	threadStorage, err := storage.NewThreadStorage(cfg.DataDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize thread storage: %v\n", err)
		os.Exit(1)
	}

	index, err := storage.NewSearchIndex(cfg.DataDir())
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("Warning: message search unavailable: %v", err)
		}
		index = nil
	} else {
		defer index.Close()
	}

	providers := provider.InitializeProviders(cfg)
	if len(providers) == 0 {
		fmt.Fprintln(os.Stderr, "No providers could be initialized; check your configuration.")
		os.Exit(1)
	}
	activeName := "ollama"
	if _, ok := providers[activeName]; !ok {
		for name := range providers {
			activeName = name
			break
		}
	}

	var host *mcp.Host
	if cfg.PluginsEnabled {
		pluginsCfg, err := config.LoadPluginsConfig(cfg.DataDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load plugins config: %v\n", err)
		} else {
			host = mcp.NewHost()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			host.StartFromConfig(ctx, cfg, pluginsCfg)
			cancel()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				host.Shutdown(ctx)
			}()
		}
	}

	var external tools.ExternalCaller
	if host != nil {
		external = host
	}
	service := tools.NewService(cfg.WorkspaceDir(), external)

	orch := agent.NewOrchestrator(cfg, providers[activeName], service)
	orch.SetStorage(threadStorage, index)
	if host != nil {
		orch.SetPlugins(host)
	}

	app := &appState{
		cfg:       cfg,
		orch:      orch,
		store:     threadStorage,
		index:     index,
		providers: providers,
		provider:  activeName,
	}
	app.resumeOrCreateThread()
	defer app.releaseThread()

	orch.OnEvent(app.handleEvent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		for range sigCh {
			orch.AbortRunning(app.currentID())
			fmt.Println("\n(aborted)")
		}
	}()

	fmt.Printf("anvil %s (%s mode, %s); /help for commands\n", Version, orch.Mode(), activeName)
	app.repl()
}

// appState is the REPL's view of the world: the active thread plus the
// shared collaborators commands operate on.
type appState struct {
	cfg       *config.Config
	orch      *agent.Orchestrator
	store     *storage.ThreadStorage
	index     *storage.SearchIndex
	providers map[string]chat.Provider
	provider  string

	mu      sync.Mutex
	current *chat.Thread
}

func (a *appState) currentID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return ""
	}
	return a.current.ID
}

func (a *appState) setCurrent(t *chat.Thread) {
	a.releaseThread()
	a.mu.Lock()
	a.current = t
	a.mu.Unlock()
	if err := a.store.LockThread(t.ID); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to lock thread %s: %v", t.ID, err)
	}
	if err := a.store.SaveCurrentThreadID(t.ID); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to persist current thread: %v", err)
	}
}

func (a *appState) releaseThread() {
	a.mu.Lock()
	t := a.current
	a.current = nil
	a.mu.Unlock()
	if t == nil {
		return
	}
	if err := a.store.UnlockThread(t.ID); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to unlock thread %s: %v", t.ID, err)
	}
}

// resumeOrCreateThread reopens the last thread unless another instance
// holds its lock, falling back to a fresh one.
func (a *appState) resumeOrCreateThread() {
	if id, err := a.store.LoadCurrentThreadID(); err == nil {
		locked, lockErr := a.store.CheckThreadLock(id)
		if lockErr == nil && !locked {
			if t, loadErr := a.store.Load(id); loadErr == nil {
				a.orch.OpenThread(t)
				a.setCurrent(t)
				return
			}
		}
	}
	a.setCurrent(a.orch.NewThread(""))
}

func (a *appState) handleEvent(ev agent.Event) {
	switch ev.Kind {
	case agent.EventContentDelta:
		fmt.Print(ev.Text)
	case agent.EventToolRequest:
		fmt.Printf("\n[tool request] %s %v\nType /approve to run it or /reject to refuse.\n", ev.Call.Name, ev.Call.Params)
	case agent.EventToolResult:
		switch ev.Call.Status {
		case chat.StatusSuccess:
			fmt.Printf("\n[tool %s] ok\n", ev.Call.Name)
		case chat.StatusRejected:
			fmt.Printf("\n[tool %s] rejected\n", ev.Call.Name)
		default:
			fmt.Printf("\n[tool %s] %s: %s\n", ev.Call.Name, ev.Call.Status, ev.Call.Error)
		}
	case agent.EventTurnError:
		fmt.Printf("\n[error] %s\n", ev.Text)
	case agent.EventTurnDone:
		fmt.Println()
	}
}

func (a *appState) repl() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "/"):
			if !a.runCommand(line) {
				return
			}
		default:
			if err := a.orch.AddUserMessageAndStreamResponse(a.currentID(), line); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

// runCommand executes a slash command. Returns false to quit.
func (a *appState) runCommand(line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		a.orch.AbortRunning(a.currentID())
		return false

	case "/help":
		printHelp()

	case "/approve":
		a.orch.ApproveLatestToolRequest(a.currentID())

	case "/reject":
		a.orch.RejectLatestToolRequest(a.currentID())

	case "/abort":
		a.orch.AbortRunning(a.currentID())

	case "/new":
		a.setCurrent(a.orch.NewThread(""))
		fmt.Println("Started a new thread.")

	case "/threads":
		metas, err := a.store.List()
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			break
		}
		printThreadList(metas)

	case "/open":
		a.openThread(rest)

	case "/rename":
		if rest == "" {
			fmt.Println("Usage: /rename <new name>")
			break
		}
		id := a.currentID()
		if err := a.store.Rename(id, rest); err != nil {
			fmt.Printf("[error] %v\n", err)
			break
		}
		if t := a.orch.Thread(id); t != nil {
			t.Name = rest
		}

	case "/delete":
		a.deleteThread(rest)

	case "/find":
		metas, err := a.store.FindByTitle(rest)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			break
		}
		printThreadList(metas)

	case "/search":
		a.searchMessages(rest)

	case "/edit":
		a.editMessage(rest)

	case "/jump":
		idx, err := strconv.Atoi(rest)
		if err != nil {
			fmt.Println("Usage: /jump <message index>")
			break
		}
		cp, err := a.orch.JumpToCheckpointBeforeMessageIdx(a.currentID(), idx)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
		} else if cp < 0 {
			fmt.Println("No checkpoint before that message.")
		} else {
			fmt.Printf("Jumped to checkpoint %d; later messages are ghosted.\n", cp)
		}

	case "/history":
		a.printHistory()

	case "/mode":
		if rest == "" {
			fmt.Printf("Mode: %s\n", a.orch.Mode())
			break
		}
		a.orch.SetMode(chat.ParseMode(rest))
		fmt.Printf("Mode: %s\n", a.orch.Mode())

	case "/provider":
		a.switchProvider(rest)

	case "/model":
		if rest == "" {
			fmt.Printf("Model: %s\n", a.orch.Provider().GetDisplayName())
			break
		}
		a.orch.Provider().SetModel(rest)
		fmt.Printf("Model: %s\n", rest)

	case "/models":
		a.listModels()

	case "/verify":
		a.verifyProvider(rest)

	default:
		fmt.Printf("Unknown command %s; /help lists commands.\n", cmd)
	}
	return true
}

func (a *appState) openThread(idPrefix string) {
	if idPrefix == "" {
		fmt.Println("Usage: /open <thread id>")
		return
	}
	metas, err := a.store.List()
	if err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	for _, meta := range metas {
		if !strings.HasPrefix(meta.ID, idPrefix) {
			continue
		}
		locked, err := a.store.CheckThreadLock(meta.ID)
		if err == nil && locked {
			fmt.Println("That thread is open in another instance.")
			return
		}
		t, err := a.store.Load(meta.ID)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			return
		}
		a.orch.OpenThread(t)
		a.setCurrent(t)
		fmt.Printf("Opened %q (%d messages).\n", t.Name, len(t.Messages))
		return
	}
	fmt.Println("No thread matches that id.")
}

func (a *appState) deleteThread(idPrefix string) {
	if idPrefix == "" {
		fmt.Println("Usage: /delete <thread id>")
		return
	}
	if strings.HasPrefix(a.currentID(), idPrefix) {
		fmt.Println("Cannot delete the open thread; /new first.")
		return
	}
	metas, err := a.store.List()
	if err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	for _, meta := range metas {
		if !strings.HasPrefix(meta.ID, idPrefix) {
			continue
		}
		if err := a.store.Delete(meta.ID); err != nil {
			fmt.Printf("[error] %v\n", err)
			return
		}
		if a.index != nil {
			if err := a.index.RemoveThread(meta.ID); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("Warning: failed to deindex thread %s: %v", meta.ID, err)
			}
		}
		fmt.Printf("Deleted %q.\n", meta.Name)
		return
	}
	fmt.Println("No thread matches that id.")
}

func (a *appState) searchMessages(query string) {
	if a.index == nil {
		fmt.Println("Message search is unavailable.")
		return
	}
	if query == "" {
		fmt.Println("Usage: /search <text>")
		return
	}
	matches, err := a.index.Search(query)
	if err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	if len(matches) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, m := range matches {
		fmt.Printf("%.8s  %-20s #%d %-9s %s\n", m.ThreadID, m.ThreadName, m.MessageIndex, m.Role, m.Preview)
	}
}

func (a *appState) editMessage(rest string) {
	idxStr, text, ok := strings.Cut(rest, " ")
	idx, err := strconv.Atoi(idxStr)
	if !ok || err != nil || strings.TrimSpace(text) == "" {
		fmt.Println("Usage: /edit <message index> <new text>")
		return
	}
	if err := a.orch.EditUserMessageAndStreamResponse(a.currentID(), idx, strings.TrimSpace(text)); err != nil {
		fmt.Printf("[error] %v\n", err)
	}
}

func (a *appState) printHistory() {
	t := a.orch.Thread(a.currentID())
	if t == nil {
		return
	}
	for i, msg := range t.Messages {
		ghost := " "
		if t.IsGhosted(i) {
			ghost = "~"
		}
		switch msg.Role {
		case chat.RoleCheckpoint:
			fmt.Printf("%s %3d [checkpoint]\n", ghost, i)
		case chat.RoleTool, chat.RoleInterruptedTool:
			fmt.Printf("%s %3d [%s] %s (%s)\n", ghost, i, msg.Role, msg.ToolCall.Name, msg.ToolCall.Status)
		default:
			fmt.Printf("%s %3d [%s] %s\n", ghost, i, msg.Role, firstLine(msg.Content))
		}
	}
}

func (a *appState) switchProvider(name string) {
	if name == "" {
		names := make([]string, 0, len(a.providers))
		for n := range a.providers {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Printf("Active: %s. Available: %s\n", a.provider, strings.Join(names, ", "))
		return
	}
	p, ok := a.providers[name]
	if !ok {
		fmt.Printf("Unknown provider %q.\n", name)
		return
	}
	a.provider = name
	a.orch.SetProvider(p)
	fmt.Printf("Provider: %s\n", name)
}

func (a *appState) listModels() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	models, err := a.orch.Provider().ListModels(ctx)
	if err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	for _, m := range models {
		fmt.Println(m.Name)
	}
}

// verifyProvider checks a configured provider's credentials and
// reachability without switching to it.
func (a *appState) verifyProvider(id string) {
	if id == "" {
		fmt.Println("Usage: /verify <provider id>")
		return
	}
	baseURL, apiKey := "", ""
	if id == "ollama" {
		baseURL = a.cfg.OllamaHost
	} else {
		found := false
		for _, pc := range a.cfg.Providers {
			if pc.ID == id {
				baseURL = pc.BaseURL
				found = true
			}
		}
		if !found {
			fmt.Printf("Provider %q is not configured.\n", id)
			return
		}
		if a.cfg.CredentialStore != nil {
			apiKey = a.cfg.CredentialStore.Get(id)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.PingProvider(ctx, id, baseURL, apiKey); err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	models, err := provider.FetchProviderModels(ctx, id, baseURL, apiKey)
	if err != nil {
		fmt.Printf("Connected, but listing models failed: %v\n", err)
		return
	}
	fmt.Printf("Provider %s OK, %d models available.\n", id, len(models))
}

func printThreadList(metas []storage.ThreadMetadata) {
	if len(metas) == 0 {
		fmt.Println("No threads.")
		return
	}
	for _, meta := range metas {
		fmt.Printf("%.8s  %-30s %3d messages  %s\n", meta.ID, meta.Name, meta.MessageCount, meta.UpdatedAt.Format("Jan 2 15:04"))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}

func printHelp() {
	fmt.Print(`Commands:
  /new                   start a new thread
  /threads               list saved threads
  /open <id>             open a thread by id prefix
  /rename <name>         rename the open thread
  /delete <id>           delete a thread by id prefix
  /find <title>          fuzzy-find threads by title
  /search <text>         search message content across threads
  /history               show the open thread with message indices
  /edit <idx> <text>     edit a user message and restart from there
  /jump <idx>            jump to the checkpoint before a message
  /approve, /reject      answer a pending tool request
  /abort                 abort the running turn
  /mode [name]           show or set chat mode (normal, gather, agent)
  /provider [name]       show or switch provider
  /model [name]          show or set the active model
  /models                list available models
  /verify <id>           check a configured provider's credentials
  /quit                  exit
`)
}
