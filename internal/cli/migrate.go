package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/kiwari-pos/terminal/internal/config"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// DefaultMigrationsSource is where the journal migrations live relative to
// the working directory.
const DefaultMigrationsSource = "file://migrations"

// ErrNoDatabase is returned when a command needs DATABASE_URL and it is unset.
var ErrNoDatabase = errors.New("DATABASE_URL is not configured")

type migrateOptions struct {
	source    string
	upSteps   int
	downSteps int
}

// MigrationStatus is the structured output of the migrate commands.
type MigrationStatus struct {
	Action  string `json:"action" yaml:"action"`
	Version uint   `json:"version" yaml:"version"`
	Dirty   bool   `json:"dirty" yaml:"dirty"`
	Changed bool   `json:"changed" yaml:"changed"`
}

// NewMigrateCommand creates the migrate command with its up, down and
// version subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the payment journal schema",
	}
	cmd.PersistentFlags().StringVar(&opts.source, "source", DefaultMigrationsSource, "migration source URL")

	up := &cobra.Command{
		Use:           "up",
		Short:         "Apply pending migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, opts, "up", cmd)
		},
	}
	up.Flags().IntVar(&opts.upSteps, "steps", 0, "apply at most this many migrations (0 = all)")

	down := &cobra.Command{
		Use:           "down",
		Short:         "Roll back migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, opts, "down", cmd)
		},
	}
	down.Flags().IntVar(&opts.downSteps, "steps", 1, "roll back this many migrations (0 = all)")

	version := &cobra.Command{
		Use:           "version",
		Short:         "Print the applied schema version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, opts, "version", cmd)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func runMigrate(rootOpts *RootOptions, opts *migrateOptions, action string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if cfg.DatabaseURL == "" {
		return WrapExitError(ExitCommandError, "migrate "+action, ErrNoDatabase)
	}
	if opts.upSteps < 0 || opts.downSteps < 0 {
		return NewExitError(ExitCommandError, "--steps must not be negative")
	}

	m, err := newMigrator(opts.source, cfg.DatabaseURL)
	if err != nil {
		return WrapExitError(ExitFailure, "open migrations", err)
	}
	defer m.Close()

	formatter.VerboseLog("Running migrate %s from %s", action, opts.source)

	changed := false
	switch action {
	case "up":
		err = stepOrAll(opts.upSteps, m.Steps, m.Up)
	case "down":
		err = stepOrAll(-opts.downSteps, m.Steps, m.Down)
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return WrapExitError(ExitFailure, "migrate "+action, err)
	default:
		changed = action != "version"
	}

	status := MigrationStatus{Action: action, Changed: changed}
	status.Version, status.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return WrapExitError(ExitFailure, "read version", err)
	}

	return formatter.Print(status, func(w io.Writer) error {
		if action != "version" && !changed {
			fmt.Fprintln(w, "no change")
		}
		_, err := fmt.Fprintf(w, "version %d (dirty: %t)\n", status.Version, status.Dirty)
		return err
	})
}

// stepOrAll runs steps(n) for a non-zero n and all() otherwise.
func stepOrAll(n int, steps func(int) error, all func() error) error {
	if n == 0 {
		return all()
	}
	return steps(n)
}

func newMigrator(source, databaseURL string) (*migrate.Migrate, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}
