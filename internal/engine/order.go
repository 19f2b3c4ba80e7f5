package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hylla/tavla/internal/domain"
)

// orderAlphabet is the densely-orderable digit set for order keys. Comparison
// of keys is plain lexicographic byte comparison.
const orderAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// FirstOrderKey returns the key assigned to the first card on an empty board.
func FirstOrderKey() string {
	return string(orderAlphabet[len(orderAlphabet)/2])
}

// KeyBetween generates an order key strictly between a and b under
// lexicographic order. An empty a means negative infinity and an empty b means
// positive infinity. Calling it repeatedly between the same pair keeps
// producing fresh, correctly ordered keys without renumbering siblings.
func KeyBetween(a, b string) (string, error) {
	if err := validateOrderKey(a); err != nil {
		return "", err
	}
	if err := validateOrderKey(b); err != nil {
		return "", err
	}
	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("%w: %q >= %q", ErrOrderKeyRange, a, b)
	}
	return midpoint(a, b), nil
}

// validateOrderKey rejects keys containing bytes outside the alphabet or a
// trailing minimum digit, which would break the midpoint invariant.
func validateOrderKey(key string) error {
	if key == "" {
		return nil
	}
	if key[len(key)-1] == orderAlphabet[0] {
		return fmt.Errorf("%w: trailing minimum digit in %q", domain.ErrInvalidOrderKey, key)
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(orderAlphabet, key[i]) < 0 {
			return fmt.Errorf("%w: byte %q in %q", domain.ErrInvalidOrderKey, key[i], key)
		}
	}
	return nil
}

// midpoint returns a key strictly between a and b, where a < b, a may be
// empty (-inf) and b may be empty (+inf). Inputs never end with the minimum
// digit and neither does the result.
func midpoint(a, b string) string {
	if b != "" {
		// Strip the longest common prefix, treating a as padded with the
		// minimum digit.
		n := 0
		for n < len(b) {
			ca := orderAlphabet[0]
			if n < len(a) {
				ca = a[n]
			}
			if ca != b[n] {
				break
			}
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(trimPrefix(a, n), b[n:])
		}
	}

	// First digits differ (or one side is unbounded).
	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(orderAlphabet, a[0])
	}
	digitB := len(orderAlphabet)
	if b != "" {
		digitB = strings.IndexByte(orderAlphabet, b[0])
	}
	if digitB-digitA > 1 {
		return string(orderAlphabet[(digitA+digitB)/2])
	}

	// Consecutive first digits: borrow b's digit when it has room to extend,
	// otherwise extend a toward +inf.
	if len(b) > 1 {
		return b[:1]
	}
	return string(orderAlphabet[digitA]) + midpoint(trimPrefix(a, 1), "")
}

// trimPrefix drops the first n bytes of key, tolerating short keys.
func trimPrefix(key string, n int) string {
	if n >= len(key) {
		return ""
	}
	return key[n:]
}

// StackRanks derives the numeric stacking value for every card by sorting on
// (order key, id). Line cards are offset past all non-line cards so they
// always render on top.
func StackRanks(cards []domain.Card) map[string]int {
	sorted := make([]domain.Card, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderKey != sorted[j].OrderKey {
			return sorted[i].OrderKey < sorted[j].OrderKey
		}
		// Equal keys are structurally impossible; keep the sort stable anyway.
		return sorted[i].ID < sorted[j].ID
	})

	ranks := make(map[string]int, len(sorted))
	rank := 0
	for _, c := range sorted {
		if c.Kind == domain.KindLine {
			continue
		}
		ranks[c.ID] = rank
		rank++
	}
	for _, c := range sorted {
		if c.Kind != domain.KindLine {
			continue
		}
		ranks[c.ID] = rank
		rank++
	}
	return ranks
}

// orderKeyBounds returns the minimum and maximum order keys among cards,
// excluding excludeID. Empty strings mean the board has no other cards.
func orderKeyBounds(cards []domain.Card, excludeID string) (minKey, maxKey string) {
	for _, c := range cards {
		if c.ID == excludeID {
			continue
		}
		if minKey == "" || c.OrderKey < minKey {
			minKey = c.OrderKey
		}
		if maxKey == "" || c.OrderKey > maxKey {
			maxKey = c.OrderKey
		}
	}
	return minKey, maxKey
}
