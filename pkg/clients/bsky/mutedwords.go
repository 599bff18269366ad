package bsky

import (
	"context"
	"regexp"
	"strings"
)

var (
	leadingHash    = regexp.MustCompile(`^#(?:[^\x{fe0f}]|$)`)
	invisibleChars = regexp.MustCompile(`[\r\n\x{00AD}\x{2060}\x{200D}\x{200C}\x{200B}]+`)
)

// SanitizeMutedWord trims the value, drops a leading hashtag marker (but
// not the keycap sequence #️) and strips line breaks and invisible joiners.
func SanitizeMutedWord(value string) string {
	v := strings.TrimSpace(value)
	if loc := leadingHash.FindStringIndex(v); loc != nil {
		v = v[1:]
	}
	return invisibleChars.ReplaceAllString(v, "")
}

func sameMutedWord(a, b MutedWord) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.Value == b.Value
}

func (a *Agent) updateMutedWords(ctx context.Context, fn func([]MutedWord) []MutedWord) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		var current []MutedWord
		if item, ok := lastOf(items, TypeMutedWordsPref, nil); ok {
			var p mutedWordsPref
			if err := item.decode(&p); err == nil {
				current = p.Items
			}
		}
		next := fn(append([]MutedWord{}, current...))
		for i := range next {
			if next[i].ID == "" {
				next[i].ID = a.newID()
			}
		}
		return replaceAll(items, TypeMutedWordsPref, mutedWordsPref{LexType: TypeMutedWordsPref, Items: nonNil(next)})
	})
}

// UpsertMutedWords adds words, merging targets into an existing entry with
// the same sanitized value. Words that sanitize to "" are skipped.
func (a *Agent) UpsertMutedWords(ctx context.Context, words []MutedWord) error {
	return a.updateMutedWords(ctx, func(current []MutedWord) []MutedWord {
		for _, w := range words {
			w.Value = SanitizeMutedWord(w.Value)
			if w.Value == "" {
				continue
			}
			merged := false
			for i := range current {
				if current[i].Value == w.Value {
					current[i].Targets = unionStrings(current[i].Targets, w.Targets)
					merged = true
					break
				}
			}
			if !merged {
				w.ID = a.newID()
				w.Targets = nonNil(w.Targets)
				current = append(current, w)
			}
		}
		return current
	})
}

// UpdateMutedWord replaces the entry matched by id, or by value when either
// side has no id.
func (a *Agent) UpdateMutedWord(ctx context.Context, word MutedWord) error {
	return a.updateMutedWords(ctx, func(current []MutedWord) []MutedWord {
		for i, existing := range current {
			if !sameMutedWord(existing, word) {
				continue
			}
			updated := word
			if updated.ID == "" {
				updated.ID = existing.ID
			}
			updated.Value = SanitizeMutedWord(updated.Value)
			updated.Targets = nonNil(updated.Targets)
			if updated.ActorTarget == "" {
				updated.ActorTarget = ActorTargetAll
			}
			current[i] = updated
		}
		return current
	})
}

func (a *Agent) RemoveMutedWord(ctx context.Context, word MutedWord) error {
	return a.RemoveMutedWords(ctx, []MutedWord{word})
}

// RemoveMutedWords drops every entry matching one of words in a single write.
func (a *Agent) RemoveMutedWords(ctx context.Context, words []MutedWord) error {
	return a.updateMutedWords(ctx, func(current []MutedWord) []MutedWord {
		out := current[:0]
		for _, existing := range current {
			drop := false
			for _, w := range words {
				if sameMutedWord(existing, w) {
					drop = true
					break
				}
			}
			if !drop {
				out = append(out, existing)
			}
		}
		return out
	})
}

func unionStrings(a, b []string) []string {
	out := append([]string{}, a...)
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
