// Package cli implements the swcatalog command line.
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"swcatalog/internal/character"
	"swcatalog/internal/film"
	"swcatalog/internal/ingest"
	"swcatalog/internal/logging"
	"swcatalog/internal/starship"
	"swcatalog/internal/swapi"
	"swcatalog/pkg/database"
	"swcatalog/pkg/utils"
)

type App struct {
	v          *viper.Viper
	configFile string
	cfg        utils.Config
	log        zerolog.Logger
}

func New() *App {
	return &App{v: utils.NewViper(), log: logging.Nop()}
}

// Execute runs the command line described by args.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "swcatalog",
		Short: "Star Wars catalog mirrored from SWAPI",
		Long: `swcatalog mirrors SWAPI characters, films and starships into a local
SQLite catalog and serves it over a paginated HTTP API.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./swcatalog.yaml or $HOME/.swcatalog/swcatalog.yaml)")
	pf.String("db", "", "SQLite database path")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		a.newFetchCommand(),
		a.newServeCommand(),
		a.newGrpcCommand(),
		a.newMigrateCommand(),
	)
	return root
}

// flagKeys maps command line flags onto config keys. Flags win over every
// other source when set.
var flagKeys = map[string]string{
	"db":        utils.KeyDBPath,
	"log-level": utils.KeyLogLevel,
	"limit":     utils.KeyIngestLimit,
	"http-addr": utils.KeyHTTPAddr,
	"tcp-addr":  utils.KeyTCPAddr,
	"grpc-addr": utils.KeyGrpcAddr,
	"schedule":  utils.KeySchedule,
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	utils.LoadEnvFiles()
	cfg, err := utils.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.Configure(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if cfg.ConfigFile != "" {
		a.log.Debug().Str("file", cfg.ConfigFile).Msg("config loaded")
	}
	return nil
}

// openDB opens and migrates the catalog database.
func (a *App) openDB() (*sql.DB, error) {
	db, err := database.Open(database.Config{Path: a.cfg.DBPath})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (a *App) newIngestor(db *sql.DB, m *ingest.Metrics) *ingest.Ingestor {
	client := swapi.NewClient(a.cfg.SwapiBaseURL, logging.Component(a.log, "swapi"))
	client.Attempts = a.cfg.FetchAttempts
	if a.cfg.FetchTimeout > 0 {
		client.HTTP.Timeout = a.cfg.FetchTimeout
	}

	return &ingest.Ingestor{
		Source:     client,
		Characters: character.NewRepo(db),
		Films:      film.NewRepo(db),
		Starships:  starship.NewRepo(db),
		Log:        logging.Component(a.log, "ingest"),
		Metrics:    m,
	}
}
