package seed

import (
	"context"
	"embed"
	"fmt"
	"io"
	"time"

	"postpilot/internal/gateway"
	"postpilot/internal/models"
	"postpilot/internal/validation"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

// Fixture is a hand-written data set loaded from YAML.
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
}

type FixtureUser struct {
	ID      string          `yaml:"id"`
	Email   string          `yaml:"email"`
	Admin   bool            `yaml:"admin"`
	Account *FixtureAccount `yaml:"account"`
	Posts   []FixturePost   `yaml:"posts"`
}

type FixtureAccount struct {
	ProfileKey string `yaml:"profile_key"`
	Connected  bool   `yaml:"connected"`
}

type FixturePost struct {
	Content      string   `yaml:"content"`
	Hashtags     []string `yaml:"hashtags"`
	MediaURL     string   `yaml:"media_url"`
	Status       string   `yaml:"status"`
	ScheduledIn  string   `yaml:"scheduled_in"`
	RetryCount   int      `yaml:"retry_count"`
	ErrorMessage string   `yaml:"error_message"`
}

// DefaultFixture returns the embedded development fixture.
func DefaultFixture() (*Fixture, error) {
	f, err := fixtureFS.Open("fixtures/dev.yaml")
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadFixture(f)
}

// LoadFixture parses and validates a YAML fixture.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	seen := make(map[string]bool, len(fx.Users))
	for i, u := range fx.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("users[%d]: id is required", i)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
		for j, p := range u.Posts {
			if p.Content == "" {
				return nil, fmt.Errorf("users[%d].posts[%d]: content is required", i, j)
			}
			if p.Status != "" && !models.PostStatus(p.Status).Valid() {
				return nil, fmt.Errorf("users[%d].posts[%d]: unknown status %q", i, j, p.Status)
			}
			if err := validation.ValidatePost(
				gateway.ComposeContent(p.Content, p.Hashtags), p.Hashtags, p.MediaURL,
			); err != nil {
				return nil, fmt.Errorf("users[%d].posts[%d]: %w", i, j, err)
			}
			if p.ScheduledIn != "" {
				if _, err := time.ParseDuration(p.ScheduledIn); err != nil {
					return nil, fmt.Errorf("users[%d].posts[%d]: scheduled_in: %w", i, j, err)
				}
			}
		}
	}
	return &fx, nil
}

// build turns the fixture into rows, resolving relative schedule times against now.
func (fx *Fixture) build(now time.Time) ([]*models.User, []*models.PostingAccount, []*models.Post) {
	var (
		users    []*models.User
		accounts []*models.PostingAccount
		posts    []*models.Post
	)
	for _, u := range fx.Users {
		users = append(users, &models.User{ID: u.ID, Email: u.Email, IsAdmin: u.Admin})

		if u.Account != nil {
			a := &models.PostingAccount{
				UserID:     u.ID,
				ProfileKey: u.Account.ProfileKey,
				Connected:  u.Account.Connected,
			}
			if a.Connected {
				at := now.UTC()
				a.ConnectedAt = &at
			}
			accounts = append(accounts, a)
		}

		for _, p := range u.Posts {
			post := &models.Post{
				UserID:       u.ID,
				Content:      p.Content,
				Hashtags:     models.StringList(p.Hashtags),
				MediaURL:     models.StringPtr(p.MediaURL),
				Status:       models.PostStatus(p.Status),
				RetryCount:   p.RetryCount,
				ErrorMessage: models.StringPtr(p.ErrorMessage),
			}
			if post.Status == "" {
				post.Status = models.PostStatusDraft
			}
			if p.ScheduledIn != "" {
				d, _ := time.ParseDuration(p.ScheduledIn)
				at := now.Add(d).UTC()
				post.ScheduledAt = &at
			}
			posts = append(posts, post)
		}
	}
	return users, accounts, posts
}

// Apply writes the fixture through the repositories.
func (s *Seeder) Apply(ctx context.Context, fx *Fixture) (*Summary, error) {
	users, accounts, posts := fx.build(s.now())
	return s.persist(ctx, users, accounts, posts)
}
