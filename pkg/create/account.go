package create

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lantern-mud/lanternmush/pkg/crypt"
	"github.com/lantern-mud/lanternmush/pkg/events"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// AccountOpts are the optional inputs to Account.
type AccountOpts struct {
	IsSuperuser bool
	Permissions []string
	Locks       string
}

// HashPassword bcrypt-hashes a password for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("create: hash password: %w", err)
	}
	return string(h), nil
}

// NormalizeEmail trims the address and lowercases its domain half,
// leaving the local part alone. Empty stays empty.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// Account creates a login identity. Usernames are unique
// case-insensitively; a clash returns ErrExists.
func (c *Creator) Account(username, email, password string, opts AccountOpts) (*gamedb.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("create: account needs a username")
	}
	if c.DB.FindAccount(username) != nil {
		return nil, fmt.Errorf("create: account %q: %w", username, ErrExists)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	a := &gamedb.Account{
		Ref:          c.DB.Allocate(),
		Username:     username,
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		IsSuperuser:  opts.IsSuperuser,
		Permissions:  normalizeList(opts.Permissions),
		Locks:        opts.Locks,
		LastLogin:    now,
		DateJoined:   now,
	}
	c.DB.AddAccount(a)
	if err := c.persist(func() error {
		if err := c.Store.PutAccount(a); err != nil {
			return err
		}
		return c.Store.UpdateUsernameIndex(a, "")
	}); err != nil {
		return nil, fmt.Errorf("create: persist account %q: %w", username, err)
	}

	c.logger().Sec("Account created: %s (%s)", a.Username, a.Ref)
	c.emit(events.AccountCreated, a.Ref, a.Username)
	return a, nil
}

// SetPassword replaces an account's password hash and persists it.
func (c *Creator) SetPassword(a *gamedb.Account, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	if err := c.persist(func() error { return c.Store.PutAccount(a) }); err != nil {
		return fmt.Errorf("create: persist account %q: %w", a.Username, err)
	}
	return nil
}

// VerifyPassword checks a password against the account's stored hash.
// bcrypt hashes verify directly. Hashes in any other format are treated
// as legacy DES crypt(3) from imported databases; when one of those
// verifies, the account is upgraded to bcrypt in place so the old hash
// never has to verify twice.
func (c *Creator) VerifyPassword(a *gamedb.Account, password string) bool {
	if a == nil || a.PasswordHash == "" {
		return false
	}
	if strings.HasPrefix(a.PasswordHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
	}

	if !crypt.CheckPassword(password, a.PasswordHash) {
		return false
	}
	if err := c.SetPassword(a, password); err != nil {
		c.logger().Warn("Could not upgrade password hash for %s: %v", a.Username, err)
	} else {
		c.logger().Sec("Upgraded legacy password hash for %s", a.Username)
	}
	return true
}
