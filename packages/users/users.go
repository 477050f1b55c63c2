package users

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// User is a synthetic identity replayed in place of the recorded user
type User struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email"`
}

// Source hands out a user per iteration. Implementations are safe for
// concurrent use.
type Source interface {
	Next() User
}

// Generator creates users with random names
type Generator struct {
	mu     sync.Mutex
	faker  *gofakeit.Faker
	domain string
}

// DefaultDomain is used when no email domain is given
const DefaultDomain = "test.com"

// NewGenerator returns a generator for emailDomain. seed 0 picks a random seed.
func NewGenerator(emailDomain string, seed int64) *Generator {
	if emailDomain == "" {
		emailDomain = DefaultDomain
	}
	return &Generator{faker: gofakeit.New(seed), domain: emailDomain}
}

// GenerateOne creates a user whose email is first.last@domain. A domain
// given without '@' gets one.
func (g *Generator) GenerateOne() User {
	g.mu.Lock()
	first := g.faker.FirstName()
	last := g.faker.LastName()
	title := g.faker.NamePrefix()
	g.mu.Unlock()

	return User{
		ID:        uuid.New().String(),
		Title:     title,
		FirstName: first,
		LastName:  last,
		Email:     Email(first, last, g.domain),
	}
}

// Generate creates n users
func (g *Generator) Generate(n int) []User {
	out := make([]User, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.GenerateOne())
	}
	return out
}

// Next implements Source
func (g *Generator) Next() User {
	return g.GenerateOne()
}

// Email builds first.last plus the domain, inserting '@' when the domain
// does not carry one
func Email(first, last, domain string) string {
	local := strings.ToLower(strings.ReplaceAll(first+"."+last, " ", ""))
	if !strings.Contains(domain, "@") {
		return local + "@" + domain
	}
	return local + domain
}

// RoundRobin cycles through a fixed user list
type RoundRobin struct {
	users []User
	next  atomic.Uint64
}

// NewRoundRobin returns a Source over users, which must not be empty
func NewRoundRobin(users []User) (*RoundRobin, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("users: empty user list")
	}
	return &RoundRobin{users: users}, nil
}

// Next implements Source
func (r *RoundRobin) Next() User {
	i := r.next.Add(1) - 1
	return r.users[i%uint64(len(r.users))]
}

// Load reads a JSON array of users
func Load(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}
	var list []User
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing users %s: %w", path, err)
	}
	for i, u := range list {
		if u.Email == "" {
			return nil, fmt.Errorf("users %s: entry %d has no email", path, i)
		}
	}
	return list, nil
}

// Save writes users as an indented JSON array
func Save(path string, list []User) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
