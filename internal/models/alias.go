package models

import (
	"strings"
	"unicode"

	"github.com/persistorai/recall/internal/tokenize"
)

// minPhoneDigits separates phone numbers from other digit strings.
const minPhoneDigits = 7

// ClassifyAlias guesses the kind of a free-text identifier.
func ClassifyAlias(s string) AliasKind {
	s = strings.TrimSpace(s)

	if strings.Contains(s, "@") && !strings.ContainsAny(s, " \t") {
		return AliasEmail
	}

	digits := 0

	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return AliasName
		}
	}

	if digits >= minPhoneDigits {
		return AliasPhone
	}

	return AliasName
}

// NormalizeAlias returns the lookup key for an alias of the given kind.
// Phones keep only digits (a leading 00 international prefix is dropped),
// emails are lowercased and names become their normalized words joined by
// single spaces, the same form query n-grams take.
func NormalizeAlias(kind AliasKind, s string) string {
	switch kind {
	case AliasPhone:
		var b strings.Builder

		for _, r := range s {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}

		return strings.TrimPrefix(b.String(), "00")
	case AliasEmail:
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return strings.Join(tokenize.Words(s), " ")
	}
}

// NewAlias builds an alias with its normalized key.
func NewAlias(kind AliasKind, s string) Alias {
	s = strings.TrimSpace(s)

	return Alias{Alias: s, Norm: NormalizeAlias(kind, s), Kind: kind}
}

// AliasList returns the aliases a create request describes, including the
// canonical name itself.
func (r *CreatePersonRequest) AliasList() []Alias {
	out := make([]Alias, 0, 1+len(r.Aliases)+len(r.Phones)+len(r.Emails))
	out = append(out, NewAlias(AliasName, r.CanonicalName))

	for _, a := range r.Aliases {
		out = append(out, NewAlias(AliasName, a))
	}

	for _, p := range r.Phones {
		out = append(out, NewAlias(AliasPhone, p))
	}

	for _, e := range r.Emails {
		out = append(out, NewAlias(AliasEmail, e))
	}

	kept := out[:0]

	for _, a := range out {
		if a.Norm != "" {
			kept = append(kept, a)
		}
	}

	return kept
}
