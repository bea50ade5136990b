// Package cli implements the data-assistant CLI commands.
package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/api"
	"github.com/rcliao/data-assistant/internal/config"
	"github.com/rcliao/data-assistant/internal/logging"
	"github.com/rcliao/data-assistant/internal/session"
	"github.com/rcliao/data-assistant/internal/store"
)

var (
	dbPath     string
	configPath string
	apiURL     string
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "data-assistant",
	Short: "Ask questions about your datasets in plain language",
	Long:  "A terminal client for the data assistant backend. Upload CSV or Excel files, pick datasets and ask questions; answers come back as SQL and rows.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: $DATA_ASSISTANT_DB or ~/.data-assistant/assistant.db)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.data-assistant/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Backend base URL (default: $DATA_ASSISTANT_API_URL or http://localhost:8000)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
}

var (
	cfgOnce sync.Once
	cfg     *config.Config
	cfgErr  error
)

// loadConfig reads the config once and applies the global flags on top.
func loadConfig() *config.Config {
	cfgOnce.Do(func() {
		cfg, cfgErr = config.Load(configPath)
		if cfgErr != nil {
			return
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if apiURL != "" {
			cfg.APIURL = apiURL
		}
		cfgErr = cfg.Validate()
	})
	if cfgErr != nil {
		exitErr("load config", cfgErr)
	}
	return cfg
}

func getDBPath() string {
	return loadConfig().DBPath
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func newLogger() *zap.Logger {
	l, err := logging.New(loadConfig().LogLevel, verbose)
	if err != nil {
		exitErr("init logger", err)
	}
	return l
}

func newIdentity(s *store.SQLiteStore, logger *zap.Logger) *session.IdentityContext {
	return session.NewIdentityContext(s, loadConfig().DefaultUser, logger)
}

// newClient returns a backend client that sends the identity's current value
// with every request.
func newClient(identity api.IdentitySource, logger *zap.Logger) *api.Client {
	c := loadConfig()
	return api.NewClient(c.APIURL, identity, c.Timeout, logger)
}

// env bundles what most commands open.
type env struct {
	store    *store.SQLiteStore
	logger   *zap.Logger
	identity *session.IdentityContext
	client   *api.Client
}

func openEnv() *env {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	logger := newLogger()
	identity := newIdentity(s, logger)
	return &env{
		store:    s,
		logger:   logger,
		identity: identity,
		client:   newClient(identity, logger),
	}
}

func (e *env) newSession(id string) *session.Session {
	return session.New(session.Deps{
		Identity: e.identity,
		Backend:  e.client,
		Cache:    e.store,
		Log:      e.store,
		Logger:   e.logger,
	}, session.Options{ID: id, QueryLimit: loadConfig().QueryLimit})
}

func (e *env) Close() {
	e.client.Close()
	e.logger.Sync()
	e.store.Close()
}

func textOutput() bool {
	return formatFlag == "text"
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
