package access

import (
	"regexp"

	"github.com/google/uuid"

	"example.com/distribo/services/recouvrement/internal/models"
)

// ScopeKind says how a scope restricts invoice visibility.
type ScopeKind string

const (
	// ScopeAll grants unrestricted, cross-depot visibility.
	ScopeAll ScopeKind = "all"
	// ScopeDepots restricts visibility to an explicit depot set.
	ScopeDepots ScopeKind = "depots"
	// ScopePatterns restricts visibility to account-number patterns, minus
	// depots reserved for other recouvrement agents.
	ScopePatterns ScopeKind = "patterns"
	// ScopeNone denies everything. A valid, successful outcome, not an error.
	ScopeNone ScopeKind = "none"
)

// Scope is the computed invoice-visibility predicate for one user. It is
// applied before any status, date or search filter.
type Scope struct {
	Kind           ScopeKind
	DepotIDs       map[uuid.UUID]struct{}
	patterns       []*regexp.Regexp
	ExcludedDepots map[uuid.UUID]struct{}
}

// BuildScope computes the visibility scope for a user.
//
// ADMIN sees everything. Roles other than ADMIN and RECOUVREMENT see their
// home depot only. For RECOUVREMENT, active depot assignments win outright
// and pattern assignments are ignored; without depot assignments, visibility
// falls back to OR-combined account patterns, excluding any depot that is
// depot-assigned to a different recouvrement agent; with neither kind of
// assignment the scope is empty.
//
// depotAssignments must contain the active depot assignments of ALL users,
// the exclusion rule needs the other agents' assignments. patternAssignments
// are the active pattern assignments of this user only.
func BuildScope(user models.User, depotAssignments []models.DepotAssignment, patternAssignments []models.Assignment) Scope {
	if user.Role == models.RoleAdmin {
		return Scope{Kind: ScopeAll}
	}

	if user.Role != models.RoleRecouvrement {
		if user.DepotID == nil {
			return Scope{Kind: ScopeNone}
		}
		return Scope{
			Kind:     ScopeDepots,
			DepotIDs: map[uuid.UUID]struct{}{*user.DepotID: {}},
		}
	}

	own := make(map[uuid.UUID]struct{})
	foreign := make(map[uuid.UUID]struct{})
	for _, da := range depotAssignments {
		if !da.Active {
			continue
		}
		if da.UserID == user.ID {
			own[da.DepotID] = struct{}{}
		} else {
			foreign[da.DepotID] = struct{}{}
		}
	}

	if len(own) > 0 {
		return Scope{Kind: ScopeDepots, DepotIDs: own}
	}

	var patterns []*regexp.Regexp
	for _, a := range patternAssignments {
		if !a.Active || a.UserID != user.ID || a.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(`^\d+` + regexp.QuoteMeta(a.Pattern))
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}

	if len(patterns) == 0 {
		return Scope{Kind: ScopeNone}
	}

	return Scope{
		Kind:           ScopePatterns,
		patterns:       patterns,
		ExcludedDepots: foreign,
	}
}

// Allows reports whether the scope makes an invoice visible.
func (s Scope) Allows(inv *models.Invoice) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeDepots:
		if inv.DepotID == nil {
			return false
		}
		_, ok := s.DepotIDs[*inv.DepotID]
		return ok
	case ScopePatterns:
		if inv.DepotID != nil {
			if _, reserved := s.ExcludedDepots[*inv.DepotID]; reserved {
				return false
			}
		}
		for _, re := range s.patterns {
			if re.MatchString(inv.AccountNumber) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Filter keeps the invoices the scope allows.
func Filter(s Scope, invoices []models.Invoice) []models.Invoice {
	if s.Kind == ScopeAll {
		return invoices
	}
	out := make([]models.Invoice, 0, len(invoices))
	for i := range invoices {
		if s.Allows(&invoices[i]) {
			out = append(out, invoices[i])
		}
	}
	return out
}
