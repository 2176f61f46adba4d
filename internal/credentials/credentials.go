// Package credentials resolves named secrets such as the clone token and the
// alert webhook URL.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/scanhunter/internal/store"
)

// Well-known credential names.
const (
	GitHubToken     = "github_token"
	AlertWebhookURL = "alert_webhook_url"
)

var ErrInvalidName = errors.New("credential name must be 1-64 characters of a-z, 0-9 and _")

var namePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidName reports whether name is acceptable as a credential name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Provider returns the current value of a named credential. ok is false when
// the credential is not configured; err is reserved for lookup failures.
type Provider interface {
	GetToken(ctx context.Context, name string) (value string, ok bool, err error)
}

// StoreProvider reads and writes sealed credentials in the database.
type StoreProvider struct {
	store  store.Store
	sealer *Sealer
}

func NewStoreProvider(s store.Store, sealer *Sealer) *StoreProvider {
	return &StoreProvider{store: s, sealer: sealer}
}

func (p *StoreProvider) GetToken(ctx context.Context, name string) (string, bool, error) {
	c, err := p.store.GetCredential(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, err := p.sealer.Open(c.SealedValue)
	if err != nil {
		return "", false, fmt.Errorf("credential %s: %w", name, err)
	}
	return v, v != "", nil
}

// Put seals value and stores it under name, replacing any previous value.
func (p *StoreProvider) Put(ctx context.Context, name, value string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	sealed, err := p.sealer.Seal(value)
	if err != nil {
		return err
	}
	return p.store.PutCredential(ctx, name, sealed)
}

// EnvProvider reads credentials from environment variables named after the
// credential in upper case, optionally prefixed.
type EnvProvider struct {
	Prefix string
}

func (p EnvProvider) GetToken(_ context.Context, name string) (string, bool, error) {
	v := os.Getenv(p.Prefix + strings.ToUpper(name))
	return v, v != "", nil
}

// Chain consults providers in order and returns the first configured value.
type Chain []Provider

func (c Chain) GetToken(ctx context.Context, name string) (string, bool, error) {
	for _, p := range c {
		v, ok, err := p.GetToken(ctx, name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Snapshot is the set of credential values resolved once for a single
// request. It is passed explicitly to whatever needs a credential.
type Snapshot struct {
	values map[string]string
}

// Load resolves names from p. Names that are not configured are absent from
// the snapshot.
func Load(ctx context.Context, p Provider, names ...string) (*Snapshot, error) {
	s := &Snapshot{values: make(map[string]string, len(names))}
	for _, name := range names {
		v, ok, err := p.GetToken(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load credential %s: %w", name, err)
		}
		if ok {
			s.values[name] = v
		}
	}
	return s, nil
}

// Get returns the value resolved for name.
func (s *Snapshot) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[name]
	return v, ok
}

var (
	_ Provider = (*StoreProvider)(nil)
	_ Provider = EnvProvider{}
	_ Provider = Chain(nil)
)
