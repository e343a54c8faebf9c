/*
identity.go - Company/worker identity normalization

PURPOSE:
  The external system is inconsistent about identity: the same company may
  arrive as an opaque id, a raw name, a differently-accented name, or one
  of several "no company" spellings. This file canonicalizes all of them
  into comparable identities.

KEY CONCEPTS:
  Sentinel identity:
    The fixed (id, label) pair for "no company assigned". Every unassigned
    spelling ("sin empresa", "sin asignar", "", "0", "null", ...) collapses
    to it.

  CompanyIdentity:
    Exactly one canonical (id, name) pair per company. Ids are authoritative
    over names when both are present; a missing id falls back to a slug
    derived from the name.

  Opaque-token classifier:
    A structural heuristic (UUID/hex pattern, digit density) flags tokens
    that are likely machine ids rather than human-readable labels, so a
    lookup table can resolve them to display names while leaving readable
    strings untouched. Pure function, injectable table, no global state.

  CompanyHoursLookup:
    Tracked company-hour records are looked up first by normalized id, then
    by normalized name. The precedence lives in this one type instead of
    being re-implemented by every consumer.

SEE ALSO:
  - resolve.go: uses CompanyHoursLookup for tracked-value resolution
  - index.go: first-seen company label fallback
*/
package registry

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// SENTINEL - The "no company assigned" identity
// =============================================================================

const (
	// UnassignedCompanyID is the sentinel id for "no company assigned".
	UnassignedCompanyID = "sin-empresa"

	// UnassignedCompanyLabel is the sentinel display name.
	UnassignedCompanyLabel = "Sin empresa asignada"
)

// unassignedSpellings are the raw values that mean "no company", after
// label normalization (lowercase, diacritics stripped, whitespace collapsed).
var unassignedSpellings = map[string]bool{
	"":                     true,
	"0":                    true,
	"null":                 true,
	"undefined":            true,
	"sin empresa":          true,
	"sin asignar":          true,
	"sin empresa asignada": true,
	"sin-empresa":          true,
	"no asignado":          true,
	"unassigned":           true,
}

// CompanyIdentity is a canonical (id, name) pair. Name is never empty.
type CompanyIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsUnassigned reports whether this identity is the sentinel.
func (c CompanyIdentity) IsUnassigned() bool {
	return c.ID == UnassignedCompanyID
}

// NormalizeKey trims a raw identifier and reports whether it denotes an
// actual identity. Unassigned spellings, empty strings, "0" and "null"
// return ("", false); anything else returns the trimmed value and true.
func NormalizeKey(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if unassignedSpellings[NormalizeLabel(trimmed)] {
		return "", false
	}
	return trimmed, true
}

// BuildCompanyIdentity canonicalizes a raw (id, name) pair.
//
// If both inputs look unassigned the sentinel identity is returned.
// Otherwise the id wins when present, falling back to a slug derived from
// the name. The display name is never empty: name, then id, then the
// sentinel label. The function is idempotent: applying it to its own
// output yields the same identity.
func BuildCompanyIdentity(id, name string) CompanyIdentity {
	cleanID, hasID := NormalizeKey(id)
	cleanName, hasName := NormalizeKey(name)

	if !hasID && !hasName {
		return CompanyIdentity{ID: UnassignedCompanyID, Name: UnassignedCompanyLabel}
	}

	identity := CompanyIdentity{}
	switch {
	case hasID:
		identity.ID = cleanID
	default:
		identity.ID = Slugify(cleanName)
	}

	switch {
	case hasName:
		identity.Name = cleanName
	case hasID:
		identity.Name = cleanID
	default:
		identity.Name = UnassignedCompanyLabel
	}
	return identity
}

// =============================================================================
// LABEL NORMALIZATION - Loose textual comparison
// =============================================================================

var diacriticsRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeLabel lowercases, strips diacritics and collapses whitespace so
// that spellings differing only in accents/case/spacing compare equal.
// Used to deduplicate company options; returns "" for blank input.
func NormalizeLabel(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return ""
	}
	if stripped, _, err := transform.String(diacriticsRemover, s); err == nil {
		s = stripped
	}
	return strings.Join(strings.Fields(s), " ")
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a stable id-like token from a display name.
func Slugify(name string) string {
	s := NormalizeLabel(name)
	s = slugCleaner.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// =============================================================================
// OPAQUE-TOKEN CLASSIFIER - "is this an id or a label?"
// =============================================================================

var (
	uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	hexPattern  = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// LooksOpaque reports whether a token is structurally a machine id rather
// than a human-readable label: UUIDs, long hex strings, and tokens whose
// runes are mostly digits.
func LooksOpaque(token string) bool {
	t := strings.TrimSpace(token)
	if t == "" {
		return false
	}
	if uuidPattern.MatchString(t) || hexPattern.MatchString(t) {
		return true
	}
	digits, letters := 0, 0
	for _, r := range t {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if digits == 0 {
		return false
	}
	return digits >= letters
}

// ResolveDisplayLabel maps a possibly-opaque token to a display label using
// the provided lookup table (normalized-id -> label). Human-readable tokens
// pass through untouched; opaque tokens missing from the table fall back to
// the raw token.
func ResolveDisplayLabel(token string, labels map[string]string) string {
	if !LooksOpaque(token) {
		return token
	}
	if label, ok := labels[strings.ToLower(strings.TrimSpace(token))]; ok && label != "" {
		return label
	}
	return token
}

// =============================================================================
// COMPANY HOURS LOOKUP - Dual-keyed (id first, name second)
// =============================================================================

// CompanyHoursLookup indexes tracked company-hour records by normalized id
// and by normalized name, with id taking precedence on lookup.
type CompanyHoursLookup struct {
	byID   map[string]CompanyHours
	byName map[string]CompanyHours
}

// NewCompanyHoursLookup builds an empty lookup.
func NewCompanyHoursLookup() *CompanyHoursLookup {
	return &CompanyHoursLookup{
		byID:   make(map[string]CompanyHours),
		byName: make(map[string]CompanyHours),
	}
}

// Add indexes a record under both keys. Later records accumulate onto
// earlier ones for the same company (the external system may split one
// company's day across entries); every name spelling already indexed for
// that company is re-pointed at the accumulated record.
func (l *CompanyHoursLookup) Add(ch CompanyHours) {
	identity := BuildCompanyIdentity(ch.CompanyID, ch.Name)
	idKey := NormalizeLabel(identity.ID)
	if prev, ok := l.byID[idKey]; ok {
		ch.Hours = ch.Hours.Add(prev.Hours)
	}
	ch.CompanyID = identity.ID
	ch.Name = identity.Name
	l.byID[idKey] = ch
	for nameKey, existing := range l.byName {
		if existing.CompanyID == identity.ID {
			l.byName[nameKey] = ch
		}
	}
	l.byName[NormalizeLabel(identity.Name)] = ch
}

// Get resolves a record by id first, then by name. An unassigned (id, name)
// pair resolves to the record indexed under the sentinel: Add canonicalizes
// unassigned records to the sentinel identity, so Get must reach them
// through the same fixed key rather than treating "unassigned" as a miss.
func (l *CompanyHoursLookup) Get(id, name string) (CompanyHours, bool) {
	if l == nil {
		return CompanyHours{}, false
	}
	if BuildCompanyIdentity(id, name).IsUnassigned() {
		ch, found := l.byID[NormalizeLabel(UnassignedCompanyID)]
		return ch, found
	}
	if key, ok := NormalizeKey(id); ok {
		if ch, found := l.byID[NormalizeLabel(key)]; found {
			return ch, true
		}
	}
	if key, ok := NormalizeKey(name); ok {
		if ch, found := l.byName[NormalizeLabel(key)]; found {
			return ch, true
		}
	}
	return CompanyHours{}, false
}

// Total sums the hours of all indexed companies.
func (l *CompanyHoursLookup) Total() decimal.Decimal {
	total := decimal.Zero
	for _, ch := range l.byID {
		total = total.Add(ch.Hours)
	}
	return total
}

// Companies returns the indexed records in unspecified order.
func (l *CompanyHoursLookup) Companies() []CompanyHours {
	if l == nil {
		return nil
	}
	out := make([]CompanyHours, 0, len(l.byID))
	for _, ch := range l.byID {
		out = append(out, ch)
	}
	return out
}
