package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bcomnes/sqlexec"
)

var versionString = sqlexec.Version

// errRunFailed signals a run that ended in a fatal condition. Details have
// already been logged, so it is not printed again.
var errRunFailed = errors.New("run failed")

// options holds the flags shared by every command.
type options struct {
	configPath string
	envFile    string
	sqlDir     string
	logDir     string
	verbose    bool

	// run flags
	mode     string
	driver   string
	dsn      string
	host     string
	port     int
	database string
	user     string

	// new flags
	numbering string
}

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "sqlexec",
		Short:         "Execute a directory of SQL scripts in natural order",
		Long:          "sqlexec executes *.sql files found recursively under a directory, in natural\norder, under a selectable transaction mode, and reports the outcome of every file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a TOML or YAML configuration file (default \"sqlexec.toml\" or \"sqlexec.yaml\" if present)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file; never overrides variables already set")
	pf.StringVarP(&opts.sqlDir, "sql-dir", "d", "", "Directory containing '*.sql' files (default \"../\")")
	pf.StringVar(&opts.logDir, "log-dir", "", "Directory for log and report files (default \"./logs\")")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(opts),
		newListCmd(opts),
		newNewCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the SQL scripts against the database",
		Long: `Execute every *.sql file under the script directory.

Transaction modes (-t):
  per-file              Commit after each script. On DB error, rollback
                        that script & continue. File errors skip the file.
  all-or-nothing        Single transaction. Commit only if ALL scripts
                        succeed. Halts and rolls back the ENTIRE transaction
                        on ANY error (scan, file, DB).
  per-file-until-error  Commit after each script. Halts processing and
                        attempts rollback on the FIRST error encountered
                        (scan, file, or DB).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScripts(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.mode, "transaction-mode", "t", "", "Transaction mode: per-file, all-or-nothing or per-file-until-error")
	f.StringVar(&opts.driver, "driver", "", "Database driver: pgx, postgres, sqlite3 or sqlite (default \"pgx\")")
	f.StringVar(&opts.dsn, "dsn", "", "Connection string; overrides DATABASE_URL and the connection fields")
	f.StringVar(&opts.host, "host", "", "Database host")
	f.IntVar(&opts.port, "port", 0, "Database port")
	f.StringVar(&opts.database, "database", "", "Database name (or SQLite file)")
	f.StringVar(&opts.user, "user", "", "Database user")
	_ = cmd.MarkFlagRequired("transaction-mode")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the SQL scripts in execution order without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listScripts(cmd, opts)
		},
	}
}

func newNewCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <description>",
		Short: "Create the next numbered, empty SQL script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			path, err := sqlexec.NewScript(cfg.ScriptDir, args[0], opts.numbering)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] Created %s\n", time.Now().Format(time.Kitchen), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.numbering, "numbering", "int", "Numbering mode: \"int\" or \"timestamp\"")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sqlexec version:", versionString)
		},
	}
}

// loadConfig resolves the configuration.
// Precedence: flags > environment > .env > config file > defaults.
func loadConfig(cmd *cobra.Command, opts *options) (sqlexec.Config, error) {
	cfg := sqlexec.DefaultConfig

	path := opts.configPath
	if path == "" {
		for _, name := range sqlexec.ConfigFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path != "" {
		if err := sqlexec.LoadConfigFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := sqlexec.LoadDotenv(opts.envFile); err != nil {
		return cfg, err
	}
	if err := sqlexec.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	set := func(name, value string, dst *string) {
		if flags.Changed(name) {
			*dst = value
		}
	}
	set("sql-dir", opts.sqlDir, &cfg.ScriptDir)
	set("log-dir", opts.logDir, &cfg.LogDir)
	set("transaction-mode", opts.mode, &cfg.Mode)
	set("driver", opts.driver, &cfg.Driver)
	set("dsn", opts.dsn, &cfg.DSN)
	set("host", opts.host, &cfg.Host)
	set("database", opts.database, &cfg.Database)
	set("user", opts.user, &cfg.User)
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	return cfg, nil
}

func runScripts(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, _ := sqlexec.ParseMode(cfg.Mode)

	stamp := time.Now().Format(sqlexec.TimestampLayout)
	logger, runDir, closeLog := newLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(),
		filepath.Join(cfg.LogDir, stamp), stamp, opts.verbose)
	defer closeLog()

	logger.Info("SQL script executor started",
		zap.String("version", versionString),
		zap.String("driver", cfg.Driver),
		zap.String("database", cfg.Redacted()))

	runner := &sqlexec.Runner{
		Mode: mode,
		Root: cfg.ScriptDir,
		Connector: &sqlexec.Connector{
			Dial:        cfg.Dialer(),
			MaxAttempts: cfg.ConnectAttempts,
			Delay:       time.Duration(cfg.ConnectDelay),
			Logger:      logger,
		},
		Logger: logger,
	}
	if runDir != "" {
		runner.Reporter = &sqlexec.ReportWriter{Dir: runDir, Timestamp: stamp, Logger: logger}
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		logger.Error("SQL script execution aborted", zap.Error(err))
		return errRunFailed
	}
	if runDir != "" {
		logger.Info("check the log directory for details", zap.String("dir", runDir))
	}
	logger.Info("SQL script execution finished", zap.Bool("success", result.Success))
	if !result.Success {
		return errRunFailed
	}
	return nil
}

func listScripts(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	stamp := time.Now().Format(sqlexec.TimestampLayout)
	logger, runDir, closeLog := newLogger(cmd.ErrOrStderr(), cmd.ErrOrStderr(),
		filepath.Join(cfg.LogDir, stamp), stamp, opts.verbose)
	defer closeLog()

	scanner := &sqlexec.Scanner{Logger: logger}
	scan, err := scanner.Scan(cfg.ScriptDir)
	if err != nil {
		return err
	}
	files := sqlexec.SortScripts(scan.Files)
	anomalies := sqlexec.SortAnomalies(scan.Anomalies)

	found := make([]string, 0, len(files))
	out := cmd.OutOrStdout()
	for _, f := range files {
		found = append(found, f.Rel)
		fmt.Fprintln(out, f.Rel)
	}
	var odd []string
	for _, a := range anomalies {
		odd = append(odd, a.String())
		fmt.Fprintf(out, "ANOMALY: %s\n", a)
	}

	if runDir != "" {
		for _, l := range []sqlexec.Listing{
			{Name: "files_found", Lines: found},
			{Name: "anomalies", Lines: odd},
		} {
			header := fmt.Sprintf("Listing: '%s' | Date: %s", l.Name, stamp)
			if err := sqlexec.WriteListing(filepath.Join(runDir, l.Name+".log"), header, l.Lines); err != nil {
				logger.Error("failed to write listing", zap.Error(err))
			}
		}
	}
	logger.Info("listing complete",
		zap.Int("files_found", len(files)),
		zap.Int("anomalies", len(anomalies)))
	return nil
}
