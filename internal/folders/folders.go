// Package folders maps an upload destination onto the marketing folder
// taxonomy in the shared drive, creating missing folders on the way:
//
//	root -> Clientes -> category -> client -> Design / Criativos ->
//	material type -> year -> "MM - Mês" [-> description]
//
// Lookups are idempotent: resolving the same path twice never creates a
// second folder.
package folders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/francaflow/flow-go/internal/upload"
)

// Fixed folder names of the taxonomy.
const (
	ClientsFolder   = "Clientes"
	CreativesFolder = "Design / Criativos"
)

// maxDescriptionRunes bounds the description folder name.
const maxDescriptionRunes = 60

var monthNames = [12]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

var titleCaser = cases.Title(language.BrazilianPortuguese)

// Backend finds and creates folders. Satisfied by *drive.Client.
type Backend interface {
	FindFolder(ctx context.Context, parentID, name string) (string, bool, error)
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
}

// Resolver resolves destinations to folder IDs. Resolved folders are
// cached for the life of the Resolver, and concurrent lookups of the same
// folder share one backend round trip. Safe for concurrent use.
type Resolver struct {
	backend Backend
	rootID  string
	loc     *time.Location
	logger  *slog.Logger
	nowFunc func() time.Time

	mu    sync.Mutex
	cache map[string]string
	group singleflight.Group
}

// NewResolver creates a Resolver rooted at the marketing folder rootID.
// Year and month folders follow the wall clock in loc (UTC if nil).
func NewResolver(backend Backend, rootID string, loc *time.Location, logger *slog.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		backend: backend,
		rootID:  rootID,
		loc:     loc,
		logger:  logger,
		nowFunc: time.Now,
		cache:   make(map[string]string),
	}
}

// Resolve returns the ID of the folder dest maps to at the current time.
func (r *Resolver) Resolve(ctx context.Context, dest upload.Destination) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}

	id := r.rootID

	for _, name := range Path(dest, r.nowFunc().In(r.loc)) {
		next, err := r.FindOrCreate(ctx, name, id)
		if err != nil {
			return "", err
		}

		id = next
	}

	return id, nil
}

// FindOrCreate returns the ID of the folder named name under parentID,
// creating it if absent.
func (r *Resolver) FindOrCreate(ctx context.Context, name, parentID string) (string, error) {
	name = norm.NFC.String(name)
	key := parentID + "\x00" + name

	r.mu.Lock()
	id, ok := r.cache[key]
	r.mu.Unlock()

	if ok {
		return id, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		id, found, err := r.backend.FindFolder(ctx, parentID, name)
		if err != nil {
			return "", fmt.Errorf("folders: finding %q: %w", name, err)
		}

		if !found {
			id, err = r.backend.CreateFolder(ctx, parentID, name)
			if err != nil {
				return "", fmt.Errorf("folders: creating %q: %w", name, err)
			}

			r.logger.Info("folder created",
				slog.String("name", name),
				slog.String("parent_id", parentID),
				slog.String("folder_id", id),
			)
		}

		r.mu.Lock()
		r.cache[key] = id
		r.mu.Unlock()

		return id, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Forget drops every cached folder ID, e.g. after folders were moved or
// deleted by hand.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
}

// Path returns the folder names below the marketing root for dest at t.
func Path(dest upload.Destination, t time.Time) []string {
	p := []string{
		ClientsFolder,
		strings.TrimSpace(dest.Category),
		strings.TrimSpace(dest.ClientName),
		CreativesFolder,
		strings.TrimSpace(dest.MaterialType),
		strconv.Itoa(t.Year()),
		MonthFolder(t),
	}

	if d := DescriptionFolder(dest.Description); d != "" {
		p = append(p, d)
	}

	return p
}

// MonthFolder renders the month folder name, e.g. "03 - Março".
func MonthFolder(t time.Time) string {
	return fmt.Sprintf("%02d - %s", int(t.Month()), titleCaser.String(monthNames[t.Month()-1]))
}

// DescriptionFolder derives the optional description folder name: the
// first 60 characters with path separators replaced by '-', trimmed.
// Returns "" when there is no usable description.
func DescriptionFolder(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return ""
	}

	runes := []rune(desc)
	if len(runes) > maxDescriptionRunes {
		runes = runes[:maxDescriptionRunes]
	}

	name := strings.NewReplacer("/", "-", `\`, "-").Replace(string(runes))

	return strings.TrimSpace(name)
}
