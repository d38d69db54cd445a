package services

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// User is a known person that can be set as a content author.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

func (u User) displayName() string {
	if strings.TrimSpace(u.FullName) != "" {
		return u.FullName
	}
	return u.Username
}

type UserDirectory interface {
	Users(ctx context.Context) ([]User, error)
}

// EntityResolver matches free-text names to known users. It never invents a user.
type EntityResolver struct {
	users []User
	names []string
}

func NewEntityResolver(users []User) *EntityResolver {
	r := &EntityResolver{users: users, names: make([]string, len(users))}
	for i, u := range users {
		r.names[i] = normalizeName(u.displayName())
	}
	return r
}

// LoadEntityResolver prefetches the directory once; lookups after that are synchronous.
func LoadEntityResolver(ctx context.Context, dir UserDirectory) (*EntityResolver, error) {
	users, err := dir.Users(ctx)
	if err != nil {
		return nil, err
	}
	return NewEntityResolver(users), nil
}

// Resolve returns the id of the first user matching name, or nil. Rules are tried in
// order across all users before moving to the next rule: exact name, substring in either
// direction, then any word of name contained in or containing the user's name. Ambiguous
// names resolve to the earliest user in directory order.
func (r *EntityResolver) Resolve(name string) *int64 {
	q := normalizeName(name)
	if q == "" || r == nil {
		return nil
	}
	for i, n := range r.names {
		if n != "" && (n == q || normalizeName(r.users[i].Username) == q) {
			return r.id(i)
		}
	}
	for i, n := range r.names {
		if n != "" && (strings.Contains(n, q) || strings.Contains(q, n)) {
			return r.id(i)
		}
	}
	tokens := strings.Fields(q)
	for i, n := range r.names {
		if n == "" {
			continue
		}
		for _, tok := range tokens {
			if strings.Contains(n, tok) || strings.Contains(tok, n) {
				return r.id(i)
			}
		}
	}
	return nil
}

func (r *EntityResolver) id(i int) *int64 {
	id := r.users[i].ID
	return &id
}

func normalizeName(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}
