// Command migrate applies migrations/001_initial_schema.sql to the configured database with Atlas.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"auditorium-reservation/internal/pkg/config"

	"ariga.io/atlas-go-sdk/atlasexec"
	"github.com/kelseyhightower/envconfig"
)

type migrateConfig struct {
	DB     config.DBConfig
	DevURL string `envconfig:"ATLAS_DEV_URL" default:"docker://postgres/17/dev"`
	Binary string `envconfig:"ATLAS_BIN" default:"atlas"`
}

func main() {
	schemaFile := flag.String("schema", "migrations/001_initial_schema.sql", "desired schema")
	dryRun := flag.Bool("dry-run", false, "print the plan without applying it")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfg migrateConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	abs, err := filepath.Abs(*schemaFile)
	if err != nil {
		logger.Error("failed to resolve schema path", "error", err)
		os.Exit(1)
	}

	client, err := atlasexec.NewClient(".", cfg.Binary)
	if err != nil {
		logger.Error("failed to init atlas client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := client.SchemaApply(ctx, &atlasexec.SchemaApplyParams{
		URL:         cfg.DB.BuildDSN(),
		To:          "file://" + abs,
		DevURL:      cfg.DevURL,
		AutoApprove: true,
		DryRun:      *dryRun,
	})
	if err != nil {
		logger.Error("schema apply failed", "error", err)
		os.Exit(1)
	}

	logger.Info("schema applied",
		"applied", len(res.Changes.Applied),
		"pending", len(res.Changes.Pending),
		"dry_run", *dryRun)
}
