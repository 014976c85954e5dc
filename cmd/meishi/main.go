// Package main is the Meishi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/assistant"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/enrich"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/parse"
	"github.com/hyperjump/meishi/internal/server"
	"github.com/hyperjump/meishi/internal/session"
	"github.com/hyperjump/meishi/internal/staging"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
	"github.com/hyperjump/meishi/internal/watcher"
	"github.com/hyperjump/meishi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/meishi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "meishi server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "import":
		runImport()
	case "contacts":
		runContacts()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("meishi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (imports, indexing, session expiry, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Inbox auto-import: files dropped into a watched directory are imported
	// with default actions on behalf of the configured user. Needs both the
	// directories and the user identity; otherwise the watcher stays off.
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.UserEmail != "" {
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			func(path string) {
				importInboxFile(components, cfg, logger, path)
			},
			logger,
		)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
		defer watchSvc.Stop()
	} else if len(cfg.Watch.Directories) > 0 {
		logger.Warn("watch.directories configured without watch.user_email; inbox watcher disabled")
	}

	srv := server.NewServer(server.Deps{
		Storage:      components.Storage,
		Indexer:      components.Indexer,
		Committer:    components.Committer,
		Sessions:     components.Sessions,
		Staging:      components.Staging,
		Assistant:    components.Assistant,
		Embedder:     components.Embedder,
		VectorIndex:  components.VectorIndex,
		KeywordIndex: components.KeywordIndex,
	}, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.VectorIndex != nil {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// importInboxFile runs the full enrichment flow for one dropped file: parse,
// classify against the configured user's contacts, commit the default actions,
// then remove the file from the inbox.
func importInboxFile(components *Components, cfg *config.Config, logger *zap.Logger, path string) {
	ctx := context.Background()
	user := cfg.Watch.UserEmail

	incoming, err := parse.File(path)
	if err != nil {
		logger.Warn("inbox parse failed", zap.String("path", path), zap.Error(err))
		return
	}
	if len(incoming) == 0 {
		logger.Warn("inbox file contained no contacts", zap.String("path", path))
		return
	}
	existing, err := components.Storage.ListContacts(ctx, user)
	if err != nil {
		logger.Warn("inbox import: list contacts failed", zap.Error(err))
		return
	}
	report := enrich.BuildReport(user, incoming, existing, "")
	outcome, err := components.Committer.Commit(ctx, report, enrich.DefaultActions(report), cfg.Enrich.DefaultOverwrite)
	if err != nil {
		logger.Warn("inbox import commit failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("inbox file imported",
		zap.String("path", path),
		zap.String("user", user),
		zap.Int("merged", outcome.Merged),
		zap.Int("created", outcome.Created),
		zap.Int("skipped", outcome.Skipped),
		zap.Int("failures", len(outcome.Failures)))
	if err := os.Remove(path); err != nil {
		logger.Warn("failed to remove imported inbox file", zap.String("path", path), zap.Error(err))
	}
}

// importResponse is the shape of POST /api/v1/imports.
type importResponse struct {
	Report          *models.MatchReport             `json:"report"`
	ProposedActions map[string]models.ContactAction `json:"proposed_actions"`
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	user := fs.String("user", "", "user email the contacts belong to (required)")
	overwrite := fs.Bool("overwrite", false, "overwrite non-empty fields when merging")
	dryRun := fs.Bool("dry-run", false, "show the match report and cancel instead of committing")
	_ = fs.Parse(os.Args[2:])

	if *user == "" {
		fmt.Println("Usage: meishi import --user <email> [flags] <file>...")
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Println("Usage: meishi import --user <email> [flags] <file>...")
		os.Exit(1)
	}

	report, err := importViaHTTP(*serverURL, *user, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	printReport(report)

	if *dryRun {
		if err := cancelViaHTTP(*serverURL, *user, report.Report.Token); err != nil {
			fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nDry run: import cancelled, nothing committed.")
		return
	}

	outcome, err := commitViaHTTP(*serverURL, *user, report, *overwrite)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Commit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nCommitted: %d merged, %d created, %d skipped\n", outcome.Merged, outcome.Created, outcome.Skipped)
	for _, f := range outcome.Failures {
		fmt.Printf("  failed [%d]: %s\n", f.Index, f.Reason)
	}
}

func printReport(resp *importResponse) {
	r := resp.Report
	fmt.Printf("Parsed %d contact(s): %d exact, %d partial, %d unmatched\n\n", r.Total, r.Exact, r.Partial, r.None)
	for _, e := range r.Entries {
		action := resp.ProposedActions[fmt.Sprintf("%d", e.Index)]
		switch e.MatchType {
		case models.MatchNone:
			fmt.Printf("  [%d] %-30s %-8s -> %s\n", e.Index, e.Name, e.MatchType, action)
		default:
			matched := e.MatchedContactName
			if e.MatchedContactCompany != "" {
				matched += " (" + e.MatchedContactCompany + ")"
			}
			fmt.Printf("  [%d] %-30s %-8s -> %s (matches %s)\n", e.Index, e.Name, e.MatchType, action, matched)
		}
	}
}

func importViaHTTP(serverURL, user string, paths []string) (*importResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			f.Close()
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/imports", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-Email", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out importResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func commitViaHTTP(serverURL, user string, report *importResponse, overwrite bool) (*models.EnrichmentOutcome, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"actions":   report.ProposedActions,
		"overwrite": overwrite,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/imports/"+report.Report.Token+"/commit", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var outcome models.EnrichmentOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &outcome, nil
}

func cancelViaHTTP(serverURL, user, token string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/imports/"+token, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-Email", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func runContacts() {
	fs := flag.NewFlagSet("contacts", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	user := fs.String("user", "", "user email (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *user == "" {
		fmt.Println("Usage: meishi contacts --user <email> [flags]")
		os.Exit(1)
	}

	contacts, err := listContactsViaHTTP(*serverURL, *user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(contacts); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		for _, c := range contacts {
			line := fmt.Sprintf("[%d] %s", c.ID, c.FullName())
			if c.Company != "" {
				line += " - " + c.Company
			}
			if c.Email != "" {
				line += " <" + c.Email + ">"
			}
			fmt.Println(line)
		}
		fmt.Printf("%d contact(s)\n", len(contacts))
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// contactListResponse is the shape of GET /api/v1/contacts.
type contactListResponse struct {
	Contacts []*models.Contact `json:"contacts"`
	Total    int               `json:"total"`
}

func listContactsViaHTTP(serverURL, user string) ([]*models.Contact, error) {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/v1/contacts", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-Email", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out contactListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Contacts, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Contacts        int64                  `json:"contacts"`
	VectorIndexSize int                    `json:"vector_index_size"`
	Namespaces      int                    `json:"namespaces"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		count, err := components.Storage.CountContacts(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count contacts failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Contacts:        count,
			VectorIndexSize: components.VectorIndex.Size(),
			Namespaces:      len(components.VectorIndex.Namespaces()),
			Config: map[string]interface{}{
				"embedding_model":      cfg.Embedding.Model,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"assistant_model":      cfg.Assistant.Model,
				"session_ttl_minutes":  cfg.Enrich.SessionTTLMinutes,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("contacts:           %d   # stored contacts across all users\n", status.Contacts)
		fmt.Printf("vector_index_size:  %d   # vectors in the semantic index\n", status.VectorIndexSize)
		fmt.Printf("namespaces:         %d   # user and per-contact document namespaces\n", status.Namespaces)
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"embedding_model", "embedding_dimensions", "assistant_model", "session_ttl_minutes"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-21s %v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
	Indexer      *indexer.Indexer
	Staging      *staging.Store
	Sessions     *session.Store
	Committer    *enrich.Committer
	Assistant    *assistant.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	apiKey := cfg.Embedding.ResolveAPIKey()
	var embedder embedding.Embedder
	if apiKey == "" {
		logger.Warn("no OpenAI API key configured; using mock embeddings (semantic search will be meaningless)")
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		openaiEmbedder, err := embedding.NewOpenAIEmbedder(apiKey, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = openaiEmbedder
	}

	vectorIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped (reindex to rebuild)", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	stagingStore, err := staging.NewStore(cfg.Storage.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging store: %w", err)
	}

	idx := indexer.NewIndexer(store, embedder, vectorIndex, keywordIndex, logger)
	sessions := session.NewStore(time.Duration(cfg.Enrich.SessionTTLMinutes)*time.Minute, stagingStore, logger)
	committer := enrich.NewCommitter(store, idx, stagingStore, logger)
	assistantEngine := assistant.NewEngine(store, embedder, vectorIndex, openai.NewClient(apiKey), &cfg.Assistant, logger)

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Indexer:      idx,
		Staging:      stagingStore,
		Sessions:     sessions,
		Committer:    committer,
		Assistant:    assistantEngine,
	}, nil
}

func printUsage() {
	fmt.Println(`meishi - Contact enrichment and assistant backend

Usage:
  meishi server [flags]            Start the HTTP server
  meishi import [flags] <file>...  Import contact files (VCF/CSV/XLSX) via the server
  meishi contacts [flags]          List a user's contacts
  meishi status [flags]            Show storage/index status
  meishi version                   Show version
  meishi help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/meishi/config.yaml)
  --debug            Enable debug logging (imports, indexing, session expiry, etc.)

Import Flags:
  --server string    Server URL (default: http://localhost:8080)
  --user string      User email the contacts belong to (required)
  --overwrite        Overwrite non-empty fields when merging (default: false)
  --dry-run          Show the match report and cancel instead of committing

Contacts Flags:
  --server string    Server URL (default: http://localhost:8080)
  --user string      User email (required)
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  meishi server
  meishi import --user nico@example.com contacts.vcf linkedin.csv
  meishi import --user nico@example.com --dry-run contacts.vcf
  meishi contacts --user nico@example.com
  meishi status --output json`)
}
