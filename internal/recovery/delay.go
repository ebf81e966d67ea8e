package recovery

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/distribo/services/recouvrement/internal/models"
)

// DefaultDelayDays is the hard fallback used when no global setting exists.
const DefaultDelayDays = 30

// accountPrefix is the literal prefix of customer account numbers. Root
// names follow it: account "411ABC123" belongs to root "ABC".
const accountPrefix = "411"

// ErrNotConfigured is returned when no delay settings exist at all. Callers
// must distinguish it from "zero urgent invoices" and prompt an administrator
// to configure a default.
var ErrNotConfigured = errors.New("no recovery delay settings configured")

// ThresholdSource says which rule produced the resolved threshold.
type ThresholdSource string

const (
	SourceCustom  ThresholdSource = "custom"
	SourceRoot    ThresholdSource = "root"
	SourceGlobal  ThresholdSource = "global"
	SourceDefault ThresholdSource = "default"
)

// Evaluation is the resolver's verdict for a single invoice.
type Evaluation struct {
	Days         int
	Source       ThresholdSource
	Reference    time.Time
	HasReference bool
	Urgent       bool
}

// ResolveThreshold computes the applicable delay threshold in days for an
// invoice. Priority: custom setting, then root-scoped setting matched against
// the account number, then the global setting, then DefaultDelayDays.
func ResolveThreshold(inv *models.Invoice, settings []models.RecoveryDelaySetting, custom *models.RecoveryCustomSetting) (int, ThresholdSource) {
	if custom != nil {
		return custom.Days, SourceCustom
	}

	if s, ok := matchRootSetting(inv.AccountNumber, settings); ok {
		return s.Days, SourceRoot
	}

	for _, s := range settings {
		if s.IsGlobal() {
			return s.Days, SourceGlobal
		}
	}

	return DefaultDelayDays, SourceDefault
}

// matchRootSetting finds the root-scoped setting applicable to an account
// number. A root matches when the account number contains the root name, or
// when the account number starts with "411" and the remainder starts with
// the root name. When several roots match, the longest root name wins, ties
// broken by name, so resolution does not depend on query order.
func matchRootSetting(account string, settings []models.RecoveryDelaySetting) (models.RecoveryDelaySetting, bool) {
	var matches []models.RecoveryDelaySetting
	for _, s := range settings {
		if s.IsGlobal() || s.Root == nil || s.Root.Name == "" {
			continue
		}
		if rootMatches(account, s.Root.Name) {
			matches = append(matches, s)
		}
	}

	if len(matches) == 0 {
		return models.RecoveryDelaySetting{}, false
	}

	sort.Slice(matches, func(i, j int) bool {
		ni, nj := matches[i].Root.Name, matches[j].Root.Name
		if len(ni) != len(nj) {
			return len(ni) > len(nj)
		}
		return ni < nj
	})

	return matches[0], true
}

func rootMatches(account, root string) bool {
	if strings.Contains(account, root) {
		return true
	}
	if rest, ok := strings.CutPrefix(account, accountPrefix); ok {
		return strings.HasPrefix(rest, root)
	}
	return false
}

// ReferenceDate selects the date the urgency check counts from: the most
// recent payment, else the most recent validated delivery note, else the
// invoice's delivery timestamp.
func ReferenceDate(inv *models.Invoice) (time.Time, bool) {
	if ref, ok := latestPaymentDate(inv.Payments); ok {
		return ref, true
	}

	var best time.Time
	var found bool
	for _, n := range inv.DeliveryNotes {
		if n.Status != models.NoteValidated {
			continue
		}
		if !found || n.CreatedAt.After(best) {
			best = n.CreatedAt
			found = true
		}
	}
	if found {
		return best, true
	}

	if inv.DeliveredAt != nil {
		return *inv.DeliveredAt, true
	}
	return time.Time{}, false
}

func latestPaymentDate(payments []models.Payment) (time.Time, bool) {
	var best time.Time
	var found bool
	for _, p := range payments {
		if !found || p.PaidAt.After(best) {
			best = p.PaidAt
			found = true
		}
	}
	return best, found
}

// IsUrgent reports whether a reference date is past the threshold.
func IsUrgent(reference time.Time, days int, now time.Time) bool {
	return reference.Before(now.AddDate(0, 0, -days))
}

// Evaluate resolves the threshold and the urgency verdict for one invoice.
// An invoice with no validated delivery note is never urgent, whatever its
// stored flag says.
func Evaluate(inv *models.Invoice, settings []models.RecoveryDelaySetting, custom *models.RecoveryCustomSetting, now time.Time) Evaluation {
	days, source := ResolveThreshold(inv, settings, custom)

	ev := Evaluation{Days: days, Source: source}

	ev.Reference, ev.HasReference = ReferenceDate(inv)
	if !ev.HasReference {
		return ev
	}

	if len(inv.ValidatedNotes()) == 0 {
		return ev
	}

	ev.Urgent = IsUrgent(ev.Reference, days, now)
	return ev
}

// FlagChange is an urgency flag write the caller must persist.
type FlagChange struct {
	InvoiceID uuid.UUID
	Urgent    bool
}

// ComputeFlagChanges recomputes the urgency flag for every unpaid invoice
// and returns only the invoices whose stored flag differs. Running it twice
// over unchanged data yields an empty second result.
func ComputeFlagChanges(invoices []models.Invoice, settings []models.RecoveryDelaySetting, customs map[uuid.UUID]*models.RecoveryCustomSetting, now time.Time) []FlagChange {
	var changes []FlagChange
	for i := range invoices {
		inv := &invoices[i]
		if inv.PaymentStatus == models.PaymentPaid {
			continue
		}

		ev := Evaluate(inv, settings, customs[inv.ID], now)
		if ev.Urgent != inv.IsUrgent {
			changes = append(changes, FlagChange{InvoiceID: inv.ID, Urgent: ev.Urgent})
		}
	}
	return changes
}

// CustomDelayPartition splits custom settings into still-active overrides
// and expired ones.
type CustomDelayPartition struct {
	Active  []models.RecoveryCustomSetting
	Expired []models.RecoveryCustomSetting
}

// PartitionCustomDelays filters custom settings by expiry. The reference
// date here is the last payment, else the invoice delivery timestamp; a
// setting whose reference date is already past now minus its day count is
// expired. Settings whose invoice is missing or has no reference date at all
// are kept active, there is nothing to measure them against.
func PartitionCustomDelays(customs []models.RecoveryCustomSetting, invoicesByID map[uuid.UUID]*models.Invoice, now time.Time) CustomDelayPartition {
	var out CustomDelayPartition
	for _, c := range customs {
		inv := invoicesByID[c.InvoiceID]
		if inv == nil {
			out.Active = append(out.Active, c)
			continue
		}

		ref, ok := latestPaymentDate(inv.Payments)
		if !ok {
			if inv.DeliveredAt == nil {
				out.Active = append(out.Active, c)
				continue
			}
			ref = *inv.DeliveredAt
		}

		if ref.Before(now.AddDate(0, 0, -c.Days)) {
			out.Expired = append(out.Expired, c)
		} else {
			out.Active = append(out.Active, c)
		}
	}
	return out
}

// GlobalDays returns the configured global threshold, falling back to
// DefaultDelayDays when no global setting exists.
func GlobalDays(settings []models.RecoveryDelaySetting) int {
	for _, s := range settings {
		if s.IsGlobal() {
			return s.Days
		}
	}
	return DefaultDelayDays
}
