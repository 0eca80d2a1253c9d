package model

import (
	"fmt"
	"strings"
)

// IdentityKind distinguishes pseudonymous identities from authenticated accounts
type IdentityKind uint8

const (
	IdentityNone    IdentityKind = iota // Zero value, no identity known
	IdentityAnon                        // Pseudonymous (anonymous) id
	IdentityAccount                     // Authenticated account id
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityAnon:
		return "anon"
	case IdentityAccount:
		return "account"
	default:
		return "none"
	}
}

// Identity is either an anonymous id or an account id, never both.
// The zero value means "no known identity".
type Identity struct {
	kind IdentityKind
	id   string
}

// AnonID returns a pseudonymous identity
func AnonID(id string) Identity {
	return Identity{kind: IdentityAnon, id: id}
}

// AccountID returns an authenticated account identity
func AccountID(id string) Identity {
	return Identity{kind: IdentityAccount, id: id}
}

// ParseIdentity parses the "anon:<id>" / "account:<id>" form produced by String.
func ParseIdentity(s string) (Identity, error) {
	prefix, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || id == "" {
		return Identity{}, fmt.Errorf("parse identity %q: expected anon:<id> or account:<id>", s)
	}
	switch prefix {
	case "anon":
		return AnonID(id), nil
	case "account", "acct":
		return AccountID(id), nil
	default:
		return Identity{}, fmt.Errorf("parse identity %q: unknown kind %q", s, prefix)
	}
}

// Kind returns the identity variant
func (i Identity) Kind() IdentityKind { return i.kind }

// ID returns the raw id within its variant
func (i Identity) ID() string { return i.id }

// IsZero reports whether no identity is set
func (i Identity) IsZero() bool { return i.kind == IdentityNone || i.id == "" }

// String returns the storage key form, e.g. "account:42"
func (i Identity) String() string {
	if i.IsZero() {
		return ""
	}
	return i.kind.String() + ":" + i.id
}

// MarshalText implements encoding.TextMarshaler
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *Identity) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*i = Identity{}
		return nil
	}
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
