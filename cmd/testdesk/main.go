// testdesk serves the test-request records and their attachments.
//
// Usage:
//
//	testdesk [-config .env] [-data dir] [-addr :8080] [-verbose]
//	testdesk -backup
//	testdesk -restore [snapshot-key | latest]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kjk/testdesk/api"
	"github.com/kjk/testdesk/attachments"
	"github.com/kjk/testdesk/backup"
	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/httputil"
	"github.com/kjk/testdesk/log"
	"github.com/kjk/testdesk/u"
)

var (
	flgConfig  string
	flgData    string
	flgAddr    string
	flgVerbose bool
	flgBackup  bool
	flgRestore string
)

func parseFlags() {
	flag.StringVar(&flgConfig, "config", "", "path of .env style config file")
	flag.StringVar(&flgData, "data", "", "data directory, overrides config")
	flag.StringVar(&flgAddr, "addr", "", "http address, overrides config")
	flag.BoolVar(&flgVerbose, "verbose", false, "log more")
	flag.BoolVar(&flgBackup, "backup", false, "snapshot table and mirror attachments to backup storage, then exit")
	flag.StringVar(&flgRestore, "restore", "", "restore table from snapshot key ('latest' for the newest), then exit")
	flag.Parse()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flgConfig)
	if err != nil {
		return nil, err
	}
	if flgData != "" {
		cfg.DataDir = flgData
	}
	if flgAddr != "" {
		cfg.HTTPAddr = flgAddr
	}
	return cfg, nil
}

func newBackupClient(ctx context.Context, cfg *config.Config) (*backup.Client, error) {
	if !cfg.Backup.Enabled() {
		return nil, fmt.Errorf("backup is not configured, set TESTDESK_BACKUP_BUCKET")
	}
	return backup.New(ctx, &cfg.Backup)
}

func runBackup(ctx context.Context, cfg *config.Config) error {
	c, err := newBackupClient(ctx, cfg)
	if err != nil {
		return err
	}
	if err = backup.Run(ctx, c, cfg, time.Now()); err != nil {
		return err
	}
	log.Logf("backup to bucket '%s' done\n", c.Bucket)
	return nil
}

func runRestore(ctx context.Context, cfg *config.Config, key string) error {
	c, err := newBackupClient(ctx, cfg)
	if err != nil {
		return err
	}
	if key == "latest" {
		key = ""
	}
	key, err = c.RestoreTable(ctx, key, cfg.TablePath())
	if err != nil {
		return err
	}
	log.Logf("restored '%s' from '%s'\n", cfg.TablePath(), key)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	srv := api.New(cfg)
	if err := srv.Initialize(); err != nil {
		return err
	}
	tablePath := cfg.TablePath()
	log.Logf("data: '%s' (%s), attachments: '%s'\n", tablePath, u.FormatSize(u.FileSize(tablePath)), attachments.New(cfg).Root())
	httpSrv := httputil.NewServer(cfg.HTTPAddr, srv.Handler())
	return httputil.RunUntilSignal(ctx, httpSrv)
}

func run() error {
	parseFlags()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Verbose = flgVerbose
	log.Init(&log.Config{Dir: cfg.LogDir})
	defer log.Close()

	ctx := context.Background()
	switch {
	case flgBackup:
		return runBackup(ctx, cfg)
	case flgRestore != "":
		return runRestore(ctx, cfg, flgRestore)
	}
	return runServer(ctx, cfg)
}

func main() {
	if err := run(); err != nil {
		log.Errorf("%s\n", err)
		os.Exit(1)
	}
}
