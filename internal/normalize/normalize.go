// Package normalize collapses raw fetched items into a unique, cleaned set
// using a content fingerprint.
package normalize

import (
	"fmt"
	"strings"

	"github.com/focusops/focus-collector/internal/focus"
)

// fingerprintPrefixRunes bounds how much normalized text feeds the
// fingerprint. Dedup is exact-prefix, not semantic: two items with the same
// platform and the same first 200 characters collapse to one.
const fingerprintPrefixRunes = 200

// Hasher computes digests for fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Normalizer deduplicates raw items within one run. The seen set is owned by
// a single orchestrator invocation; concurrent runs each get their own.
type Normalizer struct {
	hasher Hasher
}

// New constructs a Normalizer.
func New(hasher Hasher) *Normalizer {
	return &Normalizer{hasher: hasher}
}

// CollapseWhitespace reduces all whitespace runs to single spaces and trims.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint derives the dedup key for one raw item. Items with no platform
// and no text have no derivable fingerprint and return an error.
func (n *Normalizer) Fingerprint(item focus.RawItem) (string, error) {
	normalized := CollapseWhitespace(item.Text)
	if item.Platform == "" && normalized == "" {
		return "", fmt.Errorf("no fingerprint derivable for source %s", item.SourceID)
	}
	prefix := normalized
	if runes := []rune(normalized); len(runes) > fingerprintPrefixRunes {
		prefix = string(runes[:fingerprintPrefixRunes])
	}
	digest, err := n.hasher.Hash([]byte(item.Platform + "-" + prefix))
	if err != nil {
		return "", fmt.Errorf("hash fingerprint: %w", err)
	}
	return digest, nil
}

// Clean normalizes and deduplicates raw items, preserving fetch order.
// Survivors carry their normalized text and fingerprint. Items whose
// fingerprint repeats within the batch, or cannot be derived, are dropped.
// The onClean callback, if set, observes each survivor in order.
func (n *Normalizer) Clean(items []focus.RawItem, onClean func(focus.CleanItem)) []focus.CleanItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]focus.CleanItem, 0, len(items))
	for _, item := range items {
		fingerprint, err := n.Fingerprint(item)
		if err != nil {
			continue
		}
		if _, dup := seen[fingerprint]; dup {
			continue
		}
		seen[fingerprint] = struct{}{}

		item.Text = CollapseWhitespace(item.Text)
		clean := focus.CleanItem{RawItem: item, Fingerprint: fingerprint}
		out = append(out, clean)
		if onClean != nil {
			onClean(clean)
		}
	}
	return out
}
