// Package pantry supplies the ingredients the user already has on hand.
package pantry

import (
	"context"
	"strings"
)

// Static is a fixed pantry list, typically loaded from config.
type Static struct {
	items []string
}

// NewStatic creates a pantry from items, dropping blanks.
func NewStatic(items []string) *Static {
	s := &Static{}
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			s.items = append(s.items, it)
		}
	}
	return s
}

// Items implements session.PantryProvider.
func (s *Static) Items(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.items...), nil
}
