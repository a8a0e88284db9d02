package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Mask replaces the values of redacted variables.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks every variable whose name
// matches one of the patterns, at any depth of the session tree. Masked
// variables lose their children. Sessions running in memory keep the real
// values; only the stored copy is redacted.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snapshot *domain.Snapshot) error {
	cloned := snapshot.Clone()
	if cloned.Root != nil {
		maskValue(cloned.Root, m.patterns)
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskValue(v *domain.Value, patterns []*regexp.Regexp) {
	for _, name := range v.ChildNames() {
		items := v.Children(name)
		if matches(name, patterns) {
			for i := range items.Size() {
				items.Set(i, domain.NewString(Mask))
			}
			continue
		}
		for _, item := range items.Values() {
			maskValue(item, patterns)
		}
	}
}

func matches(name string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}
