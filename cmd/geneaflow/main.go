// Package main provides the geneaflow CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DavidMGG/geneaflow/pkg/audit"
	"github.com/DavidMGG/geneaflow/pkg/auth"
	"github.com/DavidMGG/geneaflow/pkg/config"
	"github.com/DavidMGG/geneaflow/pkg/geneaflow"
	"github.com/DavidMGG/geneaflow/pkg/server"
	"github.com/DavidMGG/geneaflow/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "geneaflow",
		Short: "GeneaFlow - collaborative family tree server",
		Long: `GeneaFlow is a genealogy server with a consistency engine at its core:
every person and relationship write is validated against the family graph
before it lands, so trees stay free of cycles, impossible parent ages and
duplicate records.

Features:
  - Validated person and relationship CRUD over HTTP
  - Ancestor cycle detection on every parent assignment
  - Per-tree collaborator roles (viewer/editor/admin)
  - Append-only JSONL change log
  - Accent-insensitive person search`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("GeneaFlow v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the GeneaFlow server",
		Long:  "Start the HTTP API. Configuration comes from GENEAFLOW_* environment variables and the optional YAML file named by GENEAFLOW_CONFIG_FILE; flags override both.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides GENEAFLOW_DATA_DIR)")
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides GENEAFLOW_PORT)")
	serveCmd.Flags().Bool("in-memory", false, "Run without persistence")
	serveCmd.Flags().Bool("no-auth", false, "Disable authentication")
	serveCmd.Flags().String("admin-user", "", "Create this admin account on startup")
	serveCmd.Flags().String("admin-password", "", "Password for --admin-user")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a GeneaFlow data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(initCmd)

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Seed a demo tree into the data directory",
		Long:  "Create a small three-generation demo family so a fresh install has something to browse.",
		RunE:  runDemo,
	}
	demoCmd.Flags().String("data-dir", "./data", "Data directory")
	demoCmd.Flags().String("owner", "demo", "User id that will own the demo tree")
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if inMem, _ := cmd.Flags().GetBool("in-memory"); inMem {
		cfg.Storage.InMemory = true
	}
	if noAuth, _ := cmd.Flags().GetBool("no-auth"); noAuth {
		cfg.Auth.Enabled = false
	}

	fmt.Printf("Starting GeneaFlow v%s\n", version)
	fmt.Printf("  Data directory: %s\n", cfg.Storage.DataDir)
	fmt.Printf("  HTTP API:       http://%s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Println()

	if !cfg.Storage.InMemory {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0750); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	authCfg := auth.DefaultConfig([]byte(cfg.Auth.Secret))
	authCfg.Enabled = cfg.Auth.Enabled
	authCfg.TokenExpiry = cfg.Auth.TokenExpiry
	authCfg.MinPasswordLength = cfg.Auth.MinPassword
	authenticator, err := auth.NewAuthenticator(authCfg)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}
	if !cfg.Auth.Enabled {
		fmt.Println("WARNING: authentication disabled")
	}
	if adminUser, _ := cmd.Flags().GetString("admin-user"); adminUser != "" {
		adminPassword, _ := cmd.Flags().GetString("admin-password")
		if _, err := authenticator.Register(adminUser, "", adminPassword); err != nil {
			return fmt.Errorf("creating admin user: %w", err)
		}
		fmt.Printf("  Admin user created: %s\n", adminUser)
	}

	serverCfg := server.DefaultConfig()
	serverCfg.Address = cfg.Server.Address
	serverCfg.Port = cfg.Server.Port
	httpServer, err := server.New(db, authenticator, serverCfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	fmt.Println("GeneaFlow is ready")
	fmt.Printf("  Health: http://%s:%d/health\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	fmt.Println("Server stopped")
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	fmt.Printf("Initializing GeneaFlow data directory in %s\n", dataDir)
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "badger")} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dataDir, "geneaflow.yaml")
	configContent := `# GeneaFlow configuration
storage:
  data_dir: ./data
  sync_writes: false

server:
  address: 0.0.0.0
  port: 8080

auth:
  enabled: true
  # secret must be at least 16 bytes
  secret: change-me-to-a-real-secret
  token_expiry: 24h
  min_password: 8

engine:
  min_parent_age: 12
  # 0 means unbounded ancestor traversal
  max_expansions: 0

audit:
  enabled: true
  path: ./data/changelog.jsonl

logging:
  level: info
`
	if err := os.WriteFile(configPath, []byte(configContent), 0640); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println("Initialized")
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s and set auth.secret\n", configPath)
	fmt.Printf("  2. GENEAFLOW_CONFIG_FILE=%s geneaflow serve\n", configPath)
	return nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	owner, _ := cmd.Flags().GetString("owner")

	cfg := config.Default()
	cfg.Storage.DataDir = dataDir
	cfg.Audit.Path = filepath.Join(dataDir, "changelog.jsonl")

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	tree, err := db.SeedDemo(storage.UserID(owner))
	if err != nil {
		return fmt.Errorf("seeding demo: %w", err)
	}
	fmt.Printf("Seeded demo tree %q (%s), owned by %s\n", tree.Name, tree.ID, owner)
	return nil
}

func openDB(cfg *config.Config) (*geneaflow.DB, error) {
	dbCfg := geneaflow.DefaultConfig()
	dbCfg.InMemory = cfg.Storage.InMemory
	dbCfg.BadgerSyncWrites = cfg.Storage.SyncWrites
	dbCfg.Engine.MinParentAge = cfg.Engine.MinParentAge
	dbCfg.Engine.MaxExpansions = cfg.Engine.MaxExpansions
	dbCfg.Audit = audit.Config{
		Enabled:    cfg.Audit.Enabled,
		LogPath:    cfg.Audit.Path,
		SyncWrites: cfg.Storage.SyncWrites,
	}
	return geneaflow.Open(cfg.Storage.DataDir, dbCfg)
}
