// Command migrate manages the PostgreSQL schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/coccinelle/backend/internal/infrastructure/config"
	"github.com/coccinelle/backend/internal/infrastructure/logger"
	"github.com/coccinelle/backend/internal/infrastructure/migration"
	"github.com/coccinelle/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type command struct {
	usage string
	help  string
	// args is the minimum number of positional arguments
	args int
	run  func(m *migration.Migrator, args []string) error
}

var commands = map[string]command{
	"up":   {usage: "up", help: "apply every pending migration", run: func(m *migration.Migrator, _ []string) error { return m.Up() }},
	"down": {usage: "down -confirm", help: "roll every migration back", run: confirmed(func(m *migration.Migrator) error { return m.Down() })},
	"step": {usage: "step <n>", help: "move n versions, negative rolls back", args: 1, run: func(m *migration.Migrator, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}},
	"goto": {usage: "goto <version>", help: "migrate up or down to version", args: 1, run: func(m *migration.Migrator, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(v))
	}},
	"force": {usage: "force <version>", help: "mark version applied without running it", args: 1, run: func(m *migration.Migrator, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	}},
	"drop":    {usage: "drop -confirm", help: "drop every table", run: confirmed(func(m *migration.Migrator) error { return m.Drop() })},
	"version": {usage: "version", help: "print the applied version", run: printVersion},
	"status":  {usage: "status", help: "list migrations and whether they are applied", run: printStatus},
}

var errNotConfirmed = errors.New("refusing to continue without -confirm")

func confirmed(fn func(m *migration.Migrator) error) func(*migration.Migrator, []string) error {
	return func(m *migration.Migrator, args []string) error {
		for _, a := range args {
			if a == "-confirm" || a == "--confirm" {
				return fn(m)
			}
		}
		return errNotConfirmed
	}
}

func printVersion(m *migration.Migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Printf("version %d", version)
	if dirty {
		fmt.Print(" (dirty)")
	}
	fmt.Println()
	return nil
}

func printStatus(m *migration.Migrator, _ []string) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
	for _, s := range status {
		state := "pending"
		switch {
		case s.Current:
			state = "current"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, s.Name, state)
	}
	return w.Flush()
}

func main() {
	dir := flag.String("path", "", "read migrations from this directory instead of the embedded set")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	// create only touches the filesystem
	if args[0] == "create" {
		if len(args) < 2 {
			log.Fatal("Usage: migrate create <name> [description]")
		}
		target := *dir
		if target == "" {
			target = "migrations"
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		pair, err := migration.Create(target, args[1], description, time.Now())
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created", zap.String("up", pair.UpPath), zap.String("down", pair.DownPath))
		return
	}

	cmd, ok := commands[args[0]]
	if !ok {
		log.Error("Unknown command", zap.String("command", args[0]))
		usage()
		os.Exit(2)
	}
	if len(args)-1 < cmd.args {
		log.Fatal("Missing argument", zap.String("usage", "migrate "+cmd.usage))
	}

	var source fs.FS = migrations.Files
	if *dir != "" {
		source = os.DirFS(*dir)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to reach database", zap.Error(err))
	}

	m, err := migration.New(db, source, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	if err := cmd.run(m, args[1:]); err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: migrate [flags] <command> [arguments]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  create <name> [description]\twrite an empty up/down pair\n")
	for _, name := range []string{"up", "down", "step", "goto", "version", "status", "force", "drop"} {
		c := commands[name]
		fmt.Fprintf(w, "  %s\t%s\n", c.usage, c.help)
	}
	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "The database comes from config.toml or COCCINELLE_DATABASE_* variables.")
}
