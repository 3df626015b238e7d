// pagestore REPL
// Tokenizes and evaluates statements against a single-file database
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nainya/pagestore/internal/config"
	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/internal/repl"
	"github.com/nainya/pagestore/pkg/dbfile"
	"github.com/nainya/pagestore/pkg/pager"
)

var (
	dbPath     = flag.String("db", "", "Database file path (empty runs in-memory)")
	configPath = flag.String("config", "", "Optional YAML configuration file")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	pretty     = flag.Bool("pretty", true, "Pretty-print log output")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "pretty" {
			cfg.Log.Pretty = *pretty
		}
	})

	logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.WithCaller,
	})
	log := logger.GetGlobalLogger()
	log.LogReplStart(cfg.Database)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatal("failed to open database").Err(err).Send()
	}
	log.Info("database ready").Str("table", db.Table().Name()).Send()

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = fi.Mode()&os.ModeCharDevice != 0
	}

	r := repl.New(os.Stdin, os.Stdout, log, interactive)
	if err := r.Run(); err != nil {
		log.Error("repl terminated").Err(err).Send()
		os.Exit(1)
	}
	log.LogReplShutdown()
}

// openDatabase opens or initializes the backing file. An empty path runs
// fully in-memory.
func openDatabase(path string) (*dbfile.DbFile, error) {
	if path == "" {
		db := dbfile.NewEmpty("scratch", pager.NewMemStream(),
			dbfile.WithLogger(*logger.GetGlobalLogger().GetZerolog()))
		if err := db.WriteInit(); err != nil {
			return nil, err
		}
		return db, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := dbfile.LockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	stream := pager.NewFileStream(f)
	size, err := stream.Size()
	if err != nil {
		return nil, err
	}
	zl := *logger.GetGlobalLogger().GetZerolog()
	if size == 0 {
		db := dbfile.NewEmpty("scratch", stream, dbfile.WithLogger(zl))
		if err := db.WriteInit(); err != nil {
			return nil, err
		}
		return db, nil
	}
	return dbfile.ConstructFrom(stream, dbfile.WithLogger(zl))
}
