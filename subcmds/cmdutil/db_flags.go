// Copyright (c) 2023 BVK Chaitanya

// Package cmdutil holds the flags and resources shared by the commands.
package cmdutil

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/bvk/fulfill/config"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/sglog"
)

type DBFlags struct {
	dataDir string

	logToStderr bool
}

func (f *DBFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "Path to the data directory (default $HOME/.fulfill)")
	fset.BoolVar(&f.logToStderr, "logtostderr", false, "Writes logs to stderr instead of the log files")
}

// DataDir returns the absolute path to the data directory, creating it if
// necessary.
func (f *DBFlags) DataDir() (string, error) {
	if len(f.dataDir) == 0 {
		f.dataDir = config.DefaultDataDir()
	}
	if _, err := os.Stat(f.dataDir); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not stat data directory %q: %w", f.dataDir, err)
		}
		if err := os.MkdirAll(f.dataDir, 0700); err != nil {
			return "", fmt.Errorf("could not create data directory %q: %w", f.dataDir, err)
		}
	}
	dataDir, err := filepath.Abs(f.dataDir)
	if err != nil {
		return "", fmt.Errorf("could not determine data-dir %q absolute path: %w", f.dataDir, err)
	}
	return dataDir, nil
}

// Config loads the config file from the data directory.
func (f *DBFlags) Config() (*config.Config, error) {
	dataDir, err := f.DataDir()
	if err != nil {
		return nil, err
	}
	return config.Load(dataDir)
}

// SetupLogging points the default slog logger to glog style log files under
// the data directory. Returned function flushes and closes the log files.
func (f *DBFlags) SetupLogging() (func(), error) {
	if f.logToStderr {
		return func() {}, nil
	}
	dataDir, err := f.DataDir()
	if err != nil {
		return nil, err
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("could not create log directory %q: %w", logDir, err)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs:    []string{logDir},
		LogLinkDir: logDir,
	})
	slog.SetDefault(slog.New(backend.Handler()))
	return backend.Close, nil
}

func isGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}

// GetDatabase locks the data directory and opens the trades database in it.
// Returned function closes the database and releases the lock.
func (f *DBFlags) GetDatabase(ctx context.Context) (db kv.Database, closer func(), status error) {
	dataDir, err := f.DataDir()
	if err != nil {
		return nil, nil, err
	}

	lockPath := filepath.Join(dataDir, "fulfill.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		return nil, nil, fmt.Errorf("could not get lock on file %q (is another instance running?): %w", lockPath, err)
	}
	defer func() {
		if status != nil {
			flock.Unlock()
		}
	}()

	bopts := badger.DefaultOptions(filepath.Join(dataDir, "db"))
	bopts.Logger = nil
	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open the database: %w", err)
	}
	closer = func() {
		if err := bdb.Close(); err != nil {
			slog.Error("could not close the database (ignored)", "err", err)
		}
		flock.Unlock()
	}
	return kvbadger.New(bdb, isGoodKey), closer, nil
}
