package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/repositories"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.reloadConfig(configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			r.reloadConfig(configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !r.config.StateStore.InMemory && r.config.StateStore.Path != "" {
		if err := os.MkdirAll(r.config.StateStore.Path, 0755); err != nil {
			return fmt.Errorf("failed to create state store directory: %w", err)
		}
	}

	if cmd.Bool("seed") {
		if err := r.seedDemoData(db); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return nil
}

// seedDemoData inserts a demo user with connections to both providers and a
// handful of subscriptions, so `sync run --user demo` works out of the box.
func (r *Runner) seedDemoData(db *sql.DB) error {
	subs := repositories.NewSubscriptionRepository(db)
	conns := repositories.NewConnectionRepository(db)

	for _, conn := range []*models.ProviderConnection{
		{UserID: "demo", Provider: models.ProviderYouTube, AccessToken: "demo-youtube-token", Active: true},
		{UserID: "demo", Provider: models.ProviderSpotify, AccessToken: "demo-spotify-token", Active: true},
	} {
		if err := conns.Create(conn); err != nil {
			return err
		}
	}

	for _, sub := range []*models.Subscription{
		{UserID: "demo", Provider: models.ProviderYouTube, ProviderChannelID: "UC_x5XG1OV2P6uZZ5FSM9Ttw", Title: "Google Developers", Active: true},
		{UserID: "demo", Provider: models.ProviderYouTube, ProviderChannelID: "UCsBjURrPoezykLs9EqgamOA", Title: "Fireship", Active: true},
		{UserID: "demo", Provider: models.ProviderSpotify, ProviderChannelID: "4rOoJ6Egrf8K2IrywzwOMk", Title: "The Joe Rogan Experience", Active: true},
	} {
		if err := subs.Create(sub); err != nil {
			return err
		}
	}

	r.logger.Info("seeded demo data", "user", "demo", "subscriptions", 3, "connections", 2)
	return nil
}
