package seed

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"postpilot/internal/dispatch"
	"postpilot/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory generates plausible users, accounts and posts.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory returns a factory; seed 0 picks a random seed.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// Build generates n users, most with a connected account, each with postsPerUser posts.
func (f *Factory) Build(n, postsPerUser int, now time.Time) ([]*models.User, []*models.PostingAccount, []*models.Post) {
	var (
		users    []*models.User
		accounts []*models.PostingAccount
		posts    []*models.Post
	)
	for i := 0; i < n; i++ {
		u := f.User()
		users = append(users, u)

		// Roughly one in five users never connected LinkedIn.
		if f.faker.IntRange(1, 5) > 1 {
			accounts = append(accounts, f.Account(u.ID, f.faker.IntRange(1, 10) > 1))
		}
		for j := 0; j < postsPerUser; j++ {
			posts = append(posts, f.Post(u.ID, now))
		}
	}
	return users, accounts, posts
}

func (f *Factory) User() *models.User {
	return &models.User{
		ID:    "seed-" + f.faker.UUID(),
		Email: strings.ToLower(f.faker.Email()),
	}
}

func (f *Factory) Account(userID string, connected bool) *models.PostingAccount {
	return &models.PostingAccount{
		UserID:     userID,
		ProfileKey: strings.ToUpper(f.faker.LetterN(8)) + "-" + f.faker.DigitN(6),
		Connected:  connected,
	}
}

// Post generates a post in a random lifecycle state around now.
func (f *Factory) Post(userID string, now time.Time) *models.Post {
	p := &models.Post{
		UserID:  userID,
		Content: f.content(),
	}
	for i := f.faker.IntRange(0, 3); i > 0; i-- {
		if tag := hashtag(f.faker.BuzzWord()); tag != "" {
			p.Hashtags = append(p.Hashtags, tag)
		}
	}
	if f.faker.IntRange(1, 4) == 1 {
		p.MediaURL = models.StringPtr(fmt.Sprintf("https://picsum.photos/seed/%s/1200/627", f.faker.LetterN(10)))
	}

	offset := time.Duration(f.faker.IntRange(-72, 72)) * time.Hour
	at := now.Add(offset).UTC()

	switch f.faker.RandomString([]string{"draft", "scheduled", "scheduled", "scheduled", "posted", "failed"}) {
	case "draft":
		p.Status = models.PostStatusDraft
	case "posted":
		posted := now.Add(-time.Duration(f.faker.IntRange(1, 240)) * time.Hour).UTC()
		p.Status = models.PostStatusPosted
		p.ScheduledAt = &posted
		p.PostedAt = &posted
		p.LinkedInPostID = models.StringPtr("urn:li:share:" + f.faker.DigitN(19))
	case "failed":
		p.Status = models.PostStatusFailed
		p.ScheduledAt = &at
		p.RetryCount = dispatch.DefaultCeiling
		p.ErrorMessage = models.StringPtr(f.faker.RandomString([]string{
			dispatch.MissingAccountMessage,
			"Profile key not found",
			"Duplicate post detected",
		}))
	default:
		p.Status = models.PostStatusScheduled
		p.ScheduledAt = &at
		p.RetryCount = f.faker.IntRange(0, dispatch.DefaultCeiling-1)
	}
	return p
}

func (f *Factory) content() string {
	opening := f.faker.RandomString([]string{
		"Proud to share that",
		"Big week for the team:",
		"A lesson I keep relearning:",
		"Hiring update:",
	})
	return fmt.Sprintf("%s %s. %s", opening, strings.TrimSuffix(f.faker.HackerPhrase(), "!"), f.faker.Sentence(12))
}

// hashtag keeps only the characters LinkedIn accepts in a tag.
func hashtag(word string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, word)
}
