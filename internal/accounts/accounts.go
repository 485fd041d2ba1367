// Package accounts holds the console's static credential table.
package accounts

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyTable is returned when no account could be built from configuration.
var ErrEmptyTable = errors.New("accounts: credential table is empty")

// dummyHash is compared against when the identity is unknown so that lookups
// for missing and present accounts cost the same.
var dummyHash = mustHash("relay-console-unknown-account")

// Table maps an identity to a bcrypt hash. It is immutable after construction.
type Table struct {
	hashes map[string][]byte
}

// NewTable builds a table from identity -> bcrypt hash pairs. Each hash must be
// a well-formed bcrypt hash.
func NewTable(hashes map[string]string) (*Table, error) {
	if len(hashes) == 0 {
		return nil, ErrEmptyTable
	}
	t := &Table{hashes: make(map[string][]byte, len(hashes))}
	for name, h := range hashes {
		if name == "" {
			return nil, fmt.Errorf("accounts: empty identity")
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("accounts: hash for %q: %w", name, err)
		}
		t.hashes[name] = []byte(h)
	}
	return t, nil
}

// FromPasswords hashes plaintext passwords once and builds a table. Entries with
// an empty password are skipped.
func FromPasswords(passwords map[string]string, cost int) (*Table, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashes := make(map[string]string, len(passwords))
	for name, pw := range passwords {
		if pw == "" {
			continue
		}
		h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
		if err != nil {
			return nil, fmt.Errorf("accounts: hash password for %q: %w", name, err)
		}
		hashes[name] = string(h)
	}
	return NewTable(hashes)
}

// Load prefers explicit hashes and falls back to hashing the default passwords.
func Load(hashes, defaults map[string]string) (*Table, error) {
	if len(hashes) > 0 {
		return NewTable(hashes)
	}
	return FromPasswords(defaults, 0)
}

// Verify reports whether password matches the stored hash for identity.
func (t *Table) Verify(identity, password string) bool {
	h, ok := t.hashes[identity]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(h, []byte(password)) == nil
}

// Has reports whether identity is in the table.
func (t *Table) Has(identity string) bool {
	_, ok := t.hashes[identity]
	return ok
}

// Identities returns the configured identities in sorted order.
func (t *Table) Identities() []string {
	out := make([]string, 0, len(t.hashes))
	for name := range t.hashes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func mustHash(pw string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}
