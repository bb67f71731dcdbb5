// gymctl is the Gym Desk admin command line.
//
// Usage:
//
//	gymctl [-config path] migrate [-status] [-down]
//	gymctl [-config path] seed-admin
//	gymctl [-config path] set-password [-force-change] <email>
//	gymctl [-config path] hash-password
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	_ "github.com/nerrad567/gymdesk/migrations"

	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
	"github.com/nerrad567/gymdesk/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
var version = "dev"

const defaultConfigPath = "configs/config.yaml"

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// errUsage is returned for a missing or unknown subcommand.
var errUsage = errors.New("usage: gymctl [-config path] <migrate|seed-admin|set-password|hash-password> [args]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand gets: loaded config, a logger and the
// terminal streams.
type env struct {
	cfg    *config.Config
	log    *logging.Logger
	in     *prompter
	stdout io.Writer
}

// run parses global flags and dispatches to a subcommand.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	global := flag.NewFlagSet("gymctl", flag.ContinueOnError)
	global.SetOutput(stdout)
	configPath := global.String("config", defaultPath(), "path to config.yaml")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}

	cmd, cmdArgs := rest[0], rest[1:]
	handlers := map[string]func(context.Context, *env, []string) error{
		"migrate":       cmdMigrate,
		"seed-admin":    cmdSeedAdmin,
		"set-password":  cmdSetPassword,
		"hash-password": cmdHashPassword,
	}
	handler, ok := handlers[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// stdout carries command output; logs go elsewhere.
	logCfg := cfg.Logging
	if logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}

	return handler(ctx, &env{
		cfg:    cfg,
		log:    logging.New(logCfg, version).With("component", "gymctl"),
		in:     newPrompter(stdin, stdout),
		stdout: stdout,
	}, cmdArgs)
}

// defaultPath returns GYM_CONFIG or the default config path.
func defaultPath() string {
	if path := os.Getenv("GYM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDBRaw opens the configured database without touching its schema.
func (e *env) openDBRaw() (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        e.cfg.Database.Path,
		WALMode:     e.cfg.Database.WALMode,
		BusyTimeout: e.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// openDB opens and migrates the configured database.
func (e *env) openDB(ctx context.Context) (*database.DB, error) {
	db, err := e.openDBRaw()
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func (e *env) hasher() *auth.PasswordHasher {
	return auth.NewPasswordHasher(auth.HashParams{
		Time:    e.cfg.Security.Password.Time,
		Memory:  e.cfg.Security.Password.Memory,
		Threads: e.cfg.Security.Password.Threads,
	})
}

// cmdMigrate applies pending migrations. With -down it instead rolls back
// the latest one; with -status it lists what is applied.
func cmdMigrate(ctx context.Context, e *env, args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(e.stdout)
	status := flags.Bool("status", false, "list applied migrations")
	down := flags.Bool("down", false, "roll back the most recent migration")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var (
		db  *database.DB
		err error
	)
	if *down {
		db, err = e.openDBRaw()
	} else {
		db, err = e.openDB(ctx)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	if *down {
		if err := db.MigrateDown(ctx); err != nil {
			return err
		}
		e.log.Info("rolled back latest migration", "path", db.Path())
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	fmt.Fprintf(e.stdout, "migrations applied: %d, pending: %d\n", len(applied), len(pending))
	if *status {
		for _, m := range applied {
			fmt.Fprintf(e.stdout, "  %s  %-24s %s\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		for _, m := range pending {
			fmt.Fprintf(e.stdout, "  %s  %-24s pending\n", m.Version, m.Name)
		}
	}
	return nil
}

// cmdSeedAdmin creates the configured bootstrap admin if it is missing.
func cmdSeedAdmin(ctx context.Context, e *env, _ []string) error {
	db, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	boot := e.cfg.Security.Bootstrap
	created, err := auth.SeedAdmin(ctx, auth.NewUserRepository(db.DB), e.hasher(), auth.AdminSeed{
		Name:     boot.AdminName,
		Email:    boot.AdminEmail,
		Password: boot.AdminPassword,
		QRCode:   boot.AdminQRCode,
	}, e.log.Logger)
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(e.stdout, "admin %s created\n", boot.AdminEmail)
	} else {
		fmt.Fprintf(e.stdout, "admin %s already exists\n", boot.AdminEmail)
	}
	return nil
}

// cmdSetPassword sets a user's password from a prompt. The pending-change
// flag is cleared unless -force-change is given.
func cmdSetPassword(ctx context.Context, e *env, args []string) error {
	flags := flag.NewFlagSet("set-password", flag.ContinueOnError)
	flags.SetOutput(e.stdout)
	forceChange := flags.Bool("force-change", false, "require a change at next login")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: gymctl set-password [-force-change] <email>")
	}
	email := flags.Arg(0)

	db, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	users := auth.NewUserRepository(db.DB)
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("finding %s: %w", email, err)
	}

	password, err := e.in.password("New password: ")
	if err != nil {
		return err
	}
	confirm, err := e.in.password("Confirm password: ")
	if err != nil {
		return err
	}
	if err := auth.ValidateNewPassword(password, confirm); err != nil {
		return err
	}

	digest, err := e.hasher().Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := users.UpdatePassword(ctx, user.ID, digest, *forceChange); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	e.log.Info("password set", "user_id", user.ID, "force_change", *forceChange)
	fmt.Fprintf(e.stdout, "password updated for %s\n", email)
	return nil
}

// cmdHashPassword prints the digest of a password read from stdin.
func cmdHashPassword(_ context.Context, e *env, _ []string) error {
	password, err := e.in.password("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("empty password")
	}

	digest, err := e.hasher().Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Fprintln(e.stdout, digest)
	return nil
}

// prompter reads secrets without echo from a terminal, or line by line
// from anything else.
type prompter struct {
	file   *os.File
	lines  *bufio.Reader
	stdout io.Writer
}

func newPrompter(stdin io.Reader, stdout io.Writer) *prompter {
	p := &prompter{lines: bufio.NewReader(stdin), stdout: stdout}
	if f, ok := stdin.(*os.File); ok && isTerminal(int(f.Fd())) {
		p.file = f
	}
	return p
}

func (p *prompter) password(prompt string) (string, error) {
	if p.file == nil {
		line, err := p.lines.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(p.stdout, prompt)
	pw, err := readPassword(int(p.file.Fd()))
	fmt.Fprintln(p.stdout)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}
