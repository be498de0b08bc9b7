// Package platform is the narrow messaging capability the verifier and the
// reply path depend on, plus an HTTP adapter for a Reddit-style API.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrRateLimited is returned when the platform answers 429.
var ErrRateLimited = errors.New("platform rate limit exceeded")

// Message is one private message in an account's inbox.
type Message struct {
	ID      string
	Author  string
	Body    string
	Created time.Time
}

// Client posts messages and reads one account's inbox.
type Client interface {
	// Post publishes text at target and returns the new message id.
	Post(ctx context.Context, target, text string) (string, error)
	// Inbox returns up to limit unread messages, newest first.
	Inbox(ctx context.Context, limit int) ([]Message, error)
	// MarkRead consumes the given inbox messages.
	MarkRead(ctx context.Context, ids []string) error
	// Score returns the account's reputation score.
	Score(ctx context.Context) (int, error)
	// Delete removes a previously posted message.
	Delete(ctx context.Context, id string) error
}

// Account holds the credentials and limits of one platform identity. It is
// read from the environment under a prefix such as POSTER or OBSERVER, e.g.
// POSTER_TOKEN.
type Account struct {
	Name          string        `envconfig:"NAME"`
	Token         string        `envconfig:"TOKEN"`
	UserAgent     string        `envconfig:"USER_AGENT" default:"revimg/1.0"`
	BaseURL       string        `envconfig:"BASE_URL" default:"https://oauth.reddit.com"`
	RatePerMinute float64       `envconfig:"RATE_PER_MINUTE" default:"30"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

// LoadAccount reads an Account from environment variables with prefix.
func LoadAccount(prefix string) (Account, error) {
	var a Account
	if err := envconfig.Process(prefix, &a); err != nil {
		return Account{}, fmt.Errorf("load %s account: %w", prefix, err)
	}
	if a.Name == "" {
		a.Name = prefix
	}
	return a, nil
}

// Configured reports whether the account has credentials.
func (a Account) Configured() bool { return a.Token != "" }
