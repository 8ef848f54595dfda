package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meshchat/bridge/internal/transport"
)

// refreshMargin is how close to expiry a cached token may get before Get
// refreshes it instead of returning it.
const refreshMargin = 5 * time.Minute

// BotIdentity is the cached service credential used for outbound sends.
type BotIdentity struct {
	UserID    string
	Token     string
	ExpiresOn time.Time
}

// Minter is the slice of the transport identity API the cache needs.
type Minter interface {
	CreateIdentity(ctx context.Context) (string, error)
	IssueToken(ctx context.Context, userID string, scopes []string) (transport.AccessToken, error)
}

// Cache lazily mints and reuses a single bot identity. Refresh keeps the
// existing user id so the bot does not accumulate identities; only the
// token is re-issued.
type Cache struct {
	minter Minter
	logger *slog.Logger

	mu     sync.Mutex
	cached *BotIdentity
	now    func() time.Time
}

// NewCache creates an identity cache backed by the given minter.
func NewCache(log *slog.Logger, minter Minter) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		minter: minter,
		logger: log.With(slog.String("component", "identity_cache")),
		now:    time.Now,
	}
}

// Get returns the cached identity when its token is still at least
// refreshMargin away from expiry, otherwise refreshes it first.
func (c *Cache) Get(ctx context.Context) (BotIdentity, error) {
	if c.minter == nil {
		return BotIdentity{}, fmt.Errorf("identity minter not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.cached.ExpiresOn.Sub(c.now()) > refreshMargin {
		return *c.cached, nil
	}

	userID := ""
	if c.cached != nil {
		userID = c.cached.UserID
	}
	if userID == "" {
		created, err := c.minter.CreateIdentity(ctx)
		if err != nil {
			return BotIdentity{}, fmt.Errorf("create bot identity: %w", err)
		}
		userID = created
		c.logger.Info("created bot identity", slog.String("user_id", userID))
	}

	token, err := c.minter.IssueToken(ctx, userID, []string{transport.ScopeChat})
	if err != nil {
		return BotIdentity{}, fmt.Errorf("issue bot token: %w", err)
	}
	c.cached = &BotIdentity{
		UserID:    userID,
		Token:     token.Token,
		ExpiresOn: token.ExpiresOn,
	}
	c.logger.Debug("refreshed bot token", slog.Time("expires_on", token.ExpiresOn))
	return *c.cached, nil
}
