// Package clients is the client directory: the agency's customers, each
// with a short public code that the intake page uses to look up the name
// and category a batch is filed under.
//
// Two backends implement Store. SQLiteStore keeps the directory in a local
// database; RedisStore keeps it as one JSON array under a single key, the
// layout the hosted deployment already uses.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrNotFound      = errors.New("clients: not found")
	ErrDuplicateCode = errors.New("clients: code already exists")
	ErrInvalidClient = errors.New("clients: invalid client")
)

// Client is one directory entry. JSON field names match the stored layout.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	Category  string    `json:"categoria"`
	Code      string    `json:"codigo"`
	CreatedAt time.Time `json:"criadoEm"`
}

// NewClient carries the caller-supplied fields of a new entry.
type NewClient struct {
	Name     string `json:"nome"`
	Category string `json:"categoria"`
	Code     string `json:"codigo"`
}

// Store is the client directory.
type Store interface {
	List(ctx context.Context) ([]Client, error)
	Lookup(ctx context.Context, code string) (Client, error)
	Add(ctx context.Context, c NewClient) (Client, error)
	// Remove deletes the entry with the given ID. Removing an unknown ID
	// is not an error.
	Remove(ctx context.Context, id string) error
	// Migrate replaces the whole directory with the legacy seed list.
	Migrate(ctx context.Context) ([]Client, error)
	Close() error
}

// normalize trims the fields and rejects an entry with any of them empty.
func (n NewClient) normalize() (NewClient, error) {
	n.Name = strings.TrimSpace(n.Name)
	n.Category = strings.TrimSpace(n.Category)
	n.Code = strings.TrimSpace(n.Code)

	var missing []string

	if n.Name == "" {
		missing = append(missing, "nome")
	}

	if n.Category == "" {
		missing = append(missing, "categoria")
	}

	if n.Code == "" {
		missing = append(missing, "codigo")
	}

	if len(missing) > 0 {
		return n, fmt.Errorf("%w: missing %s", ErrInvalidClient, strings.Join(missing, ", "))
	}

	return n, nil
}

func newEntry(n NewClient, now time.Time) Client {
	return Client{
		ID:        uuid.NewString(),
		Name:      n.Name,
		Category:  n.Category,
		Code:      n.Code,
		CreatedAt: now.UTC(),
	}
}

// seedEntries materializes the legacy seed list with fresh IDs.
func seedEntries(now time.Time) []Client {
	out := make([]Client, 0, len(legacySeed))
	for _, s := range legacySeed {
		out = append(out, newEntry(s, now))
	}

	return out
}
