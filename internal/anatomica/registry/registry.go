// Package registry keeps the deduplicated set of users who have interacted
// with the bot.
//
// Users are keyed by their stable Telegram user ID, never by chat ID. A user
// is created on first contact, never mutated and never deleted; first-seen
// attributes win. The registry's single mutating operation, Register, is
// safe under concurrent first contacts from different conversations: the
// backend insert is atomic, so two registrations of the same user can never
// double-store or double-notify the owner, and registrations of different
// users never lose an entry.
package registry

import (
	"context"
	"fmt"
	"log/slog"
)

// User is one registered user.
type User struct {
	// UserID is the stable external identity and the dedup key.
	UserID int64
	// ChatID is the delivery address; it may differ from UserID.
	ChatID int64
	// FullName is the display name assembled at first contact.
	FullName string
	// Username is the optional public handle.
	Username string
	// Language is the optional language tag reported by the client.
	Language string
}

// Backend stores users. Insert must be atomic: exactly one of any set of
// concurrent inserts for the same UserID may report wasNew.
type Backend interface {
	Has(ctx context.Context, userID int64) (bool, error)
	// Insert stores u unless a user with the same UserID already exists.
	// Returns true when the user was new.
	Insert(ctx context.Context, u User) (bool, error)
	// All returns a snapshot of every registered user.
	All(ctx context.Context) ([]User, error)
}

// Notifier is told about first-time registrations. Implementations must not
// propagate delivery failures to the registering interaction.
type Notifier interface {
	NewUser(ctx context.Context, u User)
}

// Noop is a Notifier that does nothing.
type Noop struct{}

// NewUser implements Notifier.
func (Noop) NewUser(context.Context, User) {}

// Registry deduplicates users over a Backend and announces first contacts.
type Registry struct {
	backend  Backend
	notifier Notifier
}

// New creates a Registry. A nil notifier disables first-contact
// announcements.
func New(backend Backend, notifier Notifier) *Registry {
	if notifier == nil {
		notifier = Noop{}
	}
	return &Registry{backend: backend, notifier: notifier}
}

// Has reports whether the user is already registered.
func (r *Registry) Has(ctx context.Context, userID int64) (bool, error) {
	return r.backend.Has(ctx, userID)
}

// Register stores u if unseen and reports whether it was new. The owner
// notification fires at most once per UserID, on the insert that won.
func (r *Registry) Register(ctx context.Context, u User) (bool, error) {
	wasNew, err := r.backend.Insert(ctx, u)
	if err != nil {
		return false, fmt.Errorf("registry: register user %d: %w", u.UserID, err)
	}
	if wasNew {
		slog.Info("new user registered", "user_id", u.UserID, "full_name", u.FullName)
		r.notifier.NewUser(ctx, u)
	}
	return wasNew, nil
}

// All returns a snapshot of every registered user, suitable for a broadcast
// pass: finite and restartable.
func (r *Registry) All(ctx context.Context) ([]User, error) {
	users, err := r.backend.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list users: %w", err)
	}
	return users, nil
}
