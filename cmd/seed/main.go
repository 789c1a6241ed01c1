// Command main seeds development data for postpilot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"postpilot/internal/config"
	"postpilot/internal/database"
	"postpilot/internal/seed"
)

func main() {
	randomUsers := flag.Int("users", 10, "Number of generated users on top of the fixture")
	postsPerUser := flag.Int("posts", 5, "Posts per generated user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fixturePath := flag.String("fixture", "", "YAML fixture replacing the built-in development fixture")
	fakerSeed := flag.Int64("faker-seed", 0, "Seed for generated data (0 = random)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatalf("Refusing to seed in %s", cfg.Env)
	}

	opts := seed.Options{
		RandomUsers:  *randomUsers,
		PostsPerUser: *postsPerUser,
		Clean:        *shouldClean,
		FakerSeed:    *fakerSeed,
	}
	if *fixturePath != "" {
		fx, err := loadFixture(*fixturePath)
		if err != nil {
			log.Fatalf("Failed to load fixture: %v", err)
		}
		opts.Fixture = fx
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	summary, err := seed.Run(context.Background(), db, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d accounts, %d posts", summary.Users, summary.Accounts, summary.Posts)
}

func loadFixture(path string) (*seed.Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fx, err := seed.LoadFixture(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fx, nil
}
