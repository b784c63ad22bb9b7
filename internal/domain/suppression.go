package domain

// MatchKind describes why an address is suppressed.
type MatchKind string

const (
	MatchNone   MatchKind = ""
	MatchExact  MatchKind = "exact"
	MatchDomain MatchKind = "domain"
)

// freeMailDomains never take part in domain-level suppression; one opt-out
// from a gmail.com address must not block every gmail.com contact.
var freeMailDomains = map[string]struct{}{
	"gmail.com":   {},
	"outlook.com": {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"live.com":    {},
}

func IsFreeMailDomain(domain string) bool {
	_, ok := freeMailDomains[NormalizeEmail(domain)]
	return ok
}

// Suppressions is the opt-out set for one reconciliation cycle.
// The zero value is an empty set. It is read-only once built.
type Suppressions struct {
	emails  map[string]struct{}
	domains map[string]struct{}
}

// NewSuppressions normalizes the given addresses and derives the
// non-free domain set from them.
func NewSuppressions(emails []string) Suppressions {
	s := Suppressions{
		emails:  make(map[string]struct{}, len(emails)),
		domains: make(map[string]struct{}),
	}
	for _, raw := range emails {
		email := NormalizeEmail(raw)
		if email == "" {
			continue
		}
		s.emails[email] = struct{}{}

		domain := EmailDomain(email)
		if domain == "" || IsFreeMailDomain(domain) {
			continue
		}
		s.domains[domain] = struct{}{}
	}
	return s
}

func (s Suppressions) Len() int {
	return len(s.emails)
}

func (s Suppressions) Empty() bool {
	return len(s.emails) == 0
}

func (s Suppressions) Contains(email string) bool {
	_, ok := s.emails[NormalizeEmail(email)]
	return ok
}

// Match reports whether email is suppressed exactly or through its domain.
func (s Suppressions) Match(email string) MatchKind {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return MatchNone
	}
	if _, ok := s.emails[normalized]; ok {
		return MatchExact
	}

	domain := EmailDomain(normalized)
	if domain == "" || IsFreeMailDomain(domain) {
		return MatchNone
	}
	if _, ok := s.domains[domain]; ok {
		return MatchDomain
	}
	return MatchNone
}
