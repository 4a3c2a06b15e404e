package create

import (
	"errors"
	"strings"
	"testing"

	"github.com/lantern-mud/lanternmush/pkg/crypt"
	"github.com/lantern-mud/lanternmush/pkg/events"
)

func TestAccountCreateAndVerify(t *testing.T) {
	c, sub := newTestCreator(t)

	a, err := c.Account("Marisa", "marisa@Example.ORG", "s3cret", AccountOpts{
		Permissions: []string{"Developers"},
	})
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if a.Email != "marisa@example.org" {
		t.Errorf("email not normalized: %q", a.Email)
	}
	if !strings.HasPrefix(a.PasswordHash, "$2") {
		t.Errorf("expected bcrypt hash, got %q", a.PasswordHash)
	}
	if a.LastLogin.IsZero() || a.DateJoined.IsZero() {
		t.Error("expected login timestamps set")
	}
	if ev := sub.last(t); ev.Type != events.AccountCreated || ev.Key != "Marisa" {
		t.Errorf("unexpected event: %+v", ev)
	}

	if !c.VerifyPassword(a, "s3cret") {
		t.Error("correct password rejected")
	}
	if c.VerifyPassword(a, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestAccountUniqueness(t *testing.T) {
	c, _ := newTestCreator(t)

	if _, err := c.Account("admin", "", "pw", AccountOpts{}); err != nil {
		t.Fatalf("Account: %v", err)
	}
	if _, err := c.Account("ADMIN", "", "pw2", AccountOpts{}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists for case-insensitive duplicate, got %v", err)
	}
	if _, err := c.Account("  ", "", "pw", AccountOpts{}); err == nil {
		t.Fatal("expected error for blank username")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"  admin@Example.COM ", "admin@example.com"},
		{"MixedCase@Example.com", "MixedCase@example.com"},
		{"no-at-sign", "no-at-sign"},
		{"odd@name@Example.NET", "odd@name@example.net"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.input); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestVerifyUpgradesLegacyHash(t *testing.T) {
	c, _ := newTestCreator(t)

	a, err := c.Account("oldtimer", "", "placeholder", AccountOpts{})
	if err != nil {
		t.Fatal(err)
	}
	// Simulate an imported record still carrying a DES crypt(3) hash.
	legacy := crypt.Crypt("opensesame", "ab")
	if legacy == "" {
		t.Fatal("could not build legacy hash")
	}
	a.PasswordHash = legacy

	if c.VerifyPassword(a, "wrong") {
		t.Error("wrong password accepted against legacy hash")
	}
	if !strings.HasPrefix(a.PasswordHash, legacy[:2]) || strings.HasPrefix(a.PasswordHash, "$2") {
		t.Error("failed verify must not rewrite the hash")
	}

	if !c.VerifyPassword(a, "opensesame") {
		t.Fatal("correct password rejected against legacy hash")
	}
	if !strings.HasPrefix(a.PasswordHash, "$2") {
		t.Errorf("expected upgrade to bcrypt, got %q", a.PasswordHash)
	}
	// The upgraded hash keeps verifying.
	if !c.VerifyPassword(a, "opensesame") {
		t.Error("upgraded hash rejected the password")
	}
}

func TestSetPassword(t *testing.T) {
	c, _ := newTestCreator(t)
	a, err := c.Account("rotate", "", "first", AccountOpts{})
	if err != nil {
		t.Fatal(err)
	}
	old := a.PasswordHash

	if err := c.SetPassword(a, "second"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if a.PasswordHash == old {
		t.Error("hash did not change")
	}
	if c.VerifyPassword(a, "first") {
		t.Error("old password still verifies")
	}
	if !c.VerifyPassword(a, "second") {
		t.Error("new password rejected")
	}
}

func TestVerifyPasswordNilAndEmpty(t *testing.T) {
	c, _ := newTestCreator(t)
	if c.VerifyPassword(nil, "x") {
		t.Error("nil account verified")
	}
	a, err := c.Account("blank", "", "pw", AccountOpts{})
	if err != nil {
		t.Fatal(err)
	}
	a.PasswordHash = ""
	if c.VerifyPassword(a, "pw") {
		t.Error("empty hash verified")
	}
}
