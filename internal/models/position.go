package models

import (
	"fmt"
	"strings"
)

// PositionConfig is one held equity position. Loaded once at startup.
type PositionConfig struct {
	Symbol     string   `json:"symbol"`
	Alternates []string `json:"alternates,omitempty"`
	Name       string   `json:"name"`
	Quantity   int      `json:"quantity"`
}

// Candidates returns the primary symbol followed by the alternates, in order
func (p PositionConfig) Candidates() []string {
	out := make([]string, 0, 1+len(p.Alternates))
	out = append(out, p.Symbol)
	seen := map[string]bool{p.Symbol: true}
	for _, alt := range p.Alternates {
		alt = strings.TrimSpace(alt)
		if alt == "" || seen[alt] {
			continue
		}
		seen[alt] = true
		out = append(out, alt)
	}
	return out
}

// ShortName is the first word of the display name, used for compact labels
func (p PositionConfig) ShortName() string {
	if fields := strings.Fields(p.Name); len(fields) > 0 {
		return fields[0]
	}
	return p.Symbol
}

// Validate checks a single position
func (p PositionConfig) Validate() error {
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("position symbol is required")
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: quantity must be positive, got %d", p.Symbol, p.Quantity)
	}
	return nil
}

// ValidatePositions checks every position and rejects duplicate symbols
func ValidatePositions(positions []PositionConfig) error {
	if len(positions) == 0 {
		return fmt.Errorf("at least one position is required")
	}
	seen := make(map[string]bool, len(positions))
	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Symbol] {
			return fmt.Errorf("duplicate position symbol: %s", p.Symbol)
		}
		seen[p.Symbol] = true
	}
	return nil
}
