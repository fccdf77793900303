package usecase

import (
	"strings"
	"unicode"

	"github.com/totegamma/flock/internal/domain"
)

// MatchKind classifies the outcome of matching a claim against candidates.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchUnique
	MatchAmbiguous
)

func (k MatchKind) String() string {
	switch k {
	case MatchUnique:
		return "unique"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// MatchResult holds every candidate that satisfied the claim.
type MatchResult struct {
	Kind    MatchKind
	Matches []domain.Profile
}

// Profile returns the single match of a unique result.
func (r MatchResult) Profile() (domain.Profile, bool) {
	if r.Kind != MatchUnique {
		return domain.Profile{}, false
	}
	return r.Matches[0], true
}

// IDs lists the ids of all matched profiles.
func (r MatchResult) IDs() []string {
	ids := make([]string, 0, len(r.Matches))
	for _, p := range r.Matches {
		ids = append(ids, p.ID)
	}
	return ids
}

// Match finds the candidates a claim refers to. Names must be equal after
// removing whitespace and case folding; partial names never match. The
// candidate phone must end with the claimed tail digits, and birthdates, when
// both sides have one, must be digit suffixes of each other.
func Match(claim domain.IdentityClaim, candidates []domain.Profile) MatchResult {
	name := normalizeName(claim.Name)
	tail := digitsOnly(claim.PhoneTail)
	birth := digitsOnly(claim.Birthdate)

	var matches []domain.Profile
	if name == "" || tail == "" {
		return MatchResult{Kind: MatchNone}
	}

	for _, candidate := range candidates {
		if normalizeName(candidate.FullName) != name {
			continue
		}
		if !strings.HasSuffix(digitsOnly(candidate.Phone), tail) {
			continue
		}
		if !birthdateCompatible(birth, digitsOnly(candidate.Birthdate)) {
			continue
		}
		matches = append(matches, candidate)
	}

	switch len(matches) {
	case 0:
		return MatchResult{Kind: MatchNone}
	case 1:
		return MatchResult{Kind: MatchUnique, Matches: matches}
	default:
		return MatchResult{Kind: MatchAmbiguous, Matches: matches}
	}
}

// birthdateCompatible accepts 6- and 8-digit forms interchangeably.
func birthdateCompatible(claimed, stored string) bool {
	if claimed == "" || stored == "" {
		return true
	}
	return strings.HasSuffix(claimed, stored) || strings.HasSuffix(stored, claimed)
}

func normalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
