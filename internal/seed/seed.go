// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/middleware"
	"postpilot/internal/models"
	"postpilot/internal/repository"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	// RandomUsers adds generated users on top of the fixture.
	RandomUsers  int
	PostsPerUser int
	// Fixture replaces the embedded development fixture.
	Fixture *Fixture
	// Clean removes existing posts, attempts, accounts and users first.
	Clean bool
	// FakerSeed makes generated data reproducible; 0 picks a random seed.
	FakerSeed int64
}

// Summary counts what a seeding run wrote.
type Summary struct {
	Users    int
	Accounts int
	Posts    int
}

// Seeder writes development data through the repositories.
type Seeder struct {
	db       *gorm.DB
	users    repository.UserRepository
	accounts repository.AccountRepository
	posts    repository.PostRepository
	now      func() time.Time
}

func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{
		db:       db,
		users:    repository.NewUserRepository(db),
		accounts: repository.NewAccountRepository(db),
		posts:    repository.NewPostRepository(db),
		now:      time.Now,
	}
}

// Run seeds the fixture and any generated users.
func Run(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	s := NewSeeder(db)

	if opts.Clean {
		if err := s.Clean(ctx); err != nil {
			return nil, err
		}
	}

	fx := opts.Fixture
	if fx == nil {
		var err error
		if fx, err = DefaultFixture(); err != nil {
			return nil, fmt.Errorf("load default fixture: %w", err)
		}
	}

	total, err := s.Apply(ctx, fx)
	if err != nil {
		return nil, err
	}

	if opts.RandomUsers > 0 {
		f := NewFactory(opts.FakerSeed)
		users, accounts, posts := f.Build(opts.RandomUsers, opts.PostsPerUser, s.now())
		generated, err := s.persist(ctx, users, accounts, posts)
		if err != nil {
			return nil, err
		}
		total.Users += generated.Users
		total.Accounts += generated.Accounts
		total.Posts += generated.Posts
	}

	middleware.Logger.InfoContext(ctx, "seeding complete",
		slog.Int("users", total.Users),
		slog.Int("accounts", total.Accounts),
		slog.Int("posts", total.Posts),
	)
	return total, nil
}

func (s *Seeder) persist(
	ctx context.Context, users []*models.User, accounts []*models.PostingAccount, posts []*models.Post,
) (*Summary, error) {
	for _, u := range users {
		if err := s.users.Upsert(ctx, u); err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}
	for _, a := range accounts {
		if err := s.accounts.Upsert(ctx, a); err != nil {
			return nil, fmt.Errorf("upsert account for %s: %w", a.UserID, err)
		}
	}
	for _, p := range posts {
		if err := s.posts.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create post for %s: %w", p.UserID, err)
		}
	}
	return &Summary{Users: len(users), Accounts: len(accounts), Posts: len(posts)}, nil
}

// Clean deletes all seedable rows, children first.
func (s *Seeder) Clean(ctx context.Context) error {
	tables := []interface{}{
		&models.DeliveryAttempt{},
		&models.Post{},
		&models.PostingAccount{},
		&models.User{},
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("clean %T: %w", model, err)
			}
		}
		return nil
	})
}
