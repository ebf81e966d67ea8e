package recovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/distribo/services/recouvrement/internal/models"
)

func daysAgo(now time.Time, d int) time.Time {
	return now.AddDate(0, 0, -d)
}

func rootSetting(name string, days int) models.RecoveryDelaySetting {
	rootID := uuid.New()
	return models.RecoveryDelaySetting{
		ID:     uuid.New(),
		Days:   days,
		RootID: &rootID,
		Root:   &models.Root{ID: rootID, Name: name},
	}
}

func globalSetting(days int) models.RecoveryDelaySetting {
	return models.RecoveryDelaySetting{ID: uuid.New(), Days: days}
}

func TestResolveThresholdPriority(t *testing.T) {
	inv := &models.Invoice{ID: uuid.New(), AccountNumber: "411ABC123"}
	settings := []models.RecoveryDelaySetting{
		globalSetting(30),
		rootSetting("ABC", 15),
	}

	// Custom wins over everything.
	custom := &models.RecoveryCustomSetting{InvoiceID: inv.ID, Days: 7}
	days, source := ResolveThreshold(inv, settings, custom)
	require.Equal(t, 7, days)
	require.Equal(t, SourceCustom, source)

	// Root wins over global.
	days, source = ResolveThreshold(inv, settings, nil)
	require.Equal(t, 15, days)
	require.Equal(t, SourceRoot, source)

	// Global when no root matches.
	inv.AccountNumber = "999XYZ"
	days, source = ResolveThreshold(inv, settings, nil)
	require.Equal(t, 30, days)
	require.Equal(t, SourceGlobal, source)

	// Hard default when no global exists either.
	days, source = ResolveThreshold(inv, []models.RecoveryDelaySetting{rootSetting("ABC", 15)}, nil)
	require.Equal(t, DefaultDelayDays, days)
	require.Equal(t, SourceDefault, source)
}

func TestResolveThresholdPrefixStrippedMatch(t *testing.T) {
	// "411ABC123" matched against root "ABC" via the stripped prefix.
	inv := &models.Invoice{AccountNumber: "411ABC123"}
	settings := []models.RecoveryDelaySetting{
		globalSetting(30),
		rootSetting("ABC", 15),
	}

	days, source := ResolveThreshold(inv, settings, nil)
	require.Equal(t, 15, days)
	require.Equal(t, SourceRoot, source)
}

func TestResolveThresholdLongestRootWins(t *testing.T) {
	inv := &models.Invoice{AccountNumber: "411ABCD99"}
	settings := []models.RecoveryDelaySetting{
		rootSetting("AB", 10),
		rootSetting("ABCD", 20),
		rootSetting("ABC", 15),
	}

	days, _ := ResolveThreshold(inv, settings, nil)
	require.Equal(t, 20, days)

	// Order of the settings slice must not matter.
	reversed := []models.RecoveryDelaySetting{settings[2], settings[1], settings[0]}
	days, _ = ResolveThreshold(inv, reversed, nil)
	require.Equal(t, 20, days)
}

func TestReferenceDateSelection(t *testing.T) {
	now := time.Now()
	paid := daysAgo(now, 5)
	older := daysAgo(now, 20)
	noteDate := daysAgo(now, 10)
	delivered := daysAgo(now, 40)

	inv := &models.Invoice{
		Payments: []models.Payment{
			{PaidAt: older},
			{PaidAt: paid},
		},
		DeliveryNotes: []models.DeliveryNote{
			{Status: models.NoteValidated, CreatedAt: noteDate},
		},
		DeliveredAt: &delivered,
	}

	// Most recent payment wins.
	ref, ok := ReferenceDate(inv)
	require.True(t, ok)
	require.Equal(t, paid, ref)

	// Without payments, the latest validated note wins.
	inv.Payments = nil
	ref, ok = ReferenceDate(inv)
	require.True(t, ok)
	require.Equal(t, noteDate, ref)

	// Pending notes are ignored.
	inv.DeliveryNotes = []models.DeliveryNote{
		{Status: models.NotePendingConfirmation, CreatedAt: noteDate},
	}
	ref, ok = ReferenceDate(inv)
	require.True(t, ok)
	require.Equal(t, delivered, ref)

	// Nothing at all.
	inv.DeliveredAt = nil
	_, ok = ReferenceDate(inv)
	require.False(t, ok)
}

func TestEvaluateUrgency(t *testing.T) {
	now := time.Now()
	settings := []models.RecoveryDelaySetting{globalSetting(30)}

	// Last payment 45 days ago against a 30 day threshold: urgent.
	inv := &models.Invoice{
		ID:            uuid.New(),
		AccountNumber: "411XYZ1",
		Payments:      []models.Payment{{PaidAt: daysAgo(now, 45)}},
		DeliveryNotes: []models.DeliveryNote{{Status: models.NoteValidated, CreatedAt: daysAgo(now, 50)}},
	}
	ev := Evaluate(inv, settings, nil, now)
	require.True(t, ev.Urgent)
	require.Equal(t, 30, ev.Days)

	// Same invoice paid 10 days ago: not urgent.
	inv.Payments = []models.Payment{{PaidAt: daysAgo(now, 10)}}
	ev = Evaluate(inv, settings, nil, now)
	require.False(t, ev.Urgent)
}

func TestEvaluateRequiresValidatedNote(t *testing.T) {
	now := time.Now()
	settings := []models.RecoveryDelaySetting{globalSetting(30)}

	inv := &models.Invoice{
		ID:            uuid.New(),
		AccountNumber: "411XYZ1",
		IsUrgent:      true,
		Payments:      []models.Payment{{PaidAt: daysAgo(now, 90)}},
		DeliveryNotes: []models.DeliveryNote{
			{Status: models.NotePendingConfirmation, CreatedAt: daysAgo(now, 90)},
		},
	}

	ev := Evaluate(inv, settings, nil, now)
	require.False(t, ev.Urgent, "invoice without validated notes must never be urgent")

	// The stale stored flag shows up as a change to clear.
	changes := ComputeFlagChanges([]models.Invoice{*inv}, settings, nil, now)
	require.Len(t, changes, 1)
	require.False(t, changes[0].Urgent)
}

func TestComputeFlagChangesIdempotent(t *testing.T) {
	now := time.Now()
	settings := []models.RecoveryDelaySetting{globalSetting(30)}

	invoices := []models.Invoice{
		{
			ID:            uuid.New(),
			AccountNumber: "411AAA1",
			PaymentStatus: models.PaymentUnpaid,
			Payments:      []models.Payment{{PaidAt: daysAgo(now, 45)}},
			DeliveryNotes: []models.DeliveryNote{{Status: models.NoteValidated, CreatedAt: daysAgo(now, 50)}},
		},
		{
			ID:            uuid.New(),
			AccountNumber: "411BBB1",
			PaymentStatus: models.PaymentUnpaid,
			Payments:      []models.Payment{{PaidAt: daysAgo(now, 5)}},
			DeliveryNotes: []models.DeliveryNote{{Status: models.NoteValidated, CreatedAt: daysAgo(now, 6)}},
		},
	}

	changes := ComputeFlagChanges(invoices, settings, nil, now)
	require.Len(t, changes, 1)
	require.Equal(t, invoices[0].ID, changes[0].InvoiceID)
	require.True(t, changes[0].Urgent)

	// Apply the writes, rerun: no further changes.
	for _, ch := range changes {
		for i := range invoices {
			if invoices[i].ID == ch.InvoiceID {
				invoices[i].IsUrgent = ch.Urgent
			}
		}
	}
	require.Empty(t, ComputeFlagChanges(invoices, settings, nil, now))
}

func TestComputeFlagChangesSkipsPaidInvoices(t *testing.T) {
	now := time.Now()
	settings := []models.RecoveryDelaySetting{globalSetting(30)}

	invoices := []models.Invoice{{
		ID:            uuid.New(),
		AccountNumber: "411CCC1",
		PaymentStatus: models.PaymentPaid,
		Payments:      []models.Payment{{PaidAt: daysAgo(now, 100)}},
		DeliveryNotes: []models.DeliveryNote{{Status: models.NoteValidated, CreatedAt: daysAgo(now, 100)}},
	}}

	require.Empty(t, ComputeFlagChanges(invoices, settings, nil, now))
}

func TestPartitionCustomDelays(t *testing.T) {
	now := time.Now()

	activeInv := &models.Invoice{ID: uuid.New(), Payments: []models.Payment{{PaidAt: daysAgo(now, 3)}}}
	expiredInv := &models.Invoice{ID: uuid.New(), Payments: []models.Payment{{PaidAt: daysAgo(now, 30)}}}
	delivered := daysAgo(now, 60)
	expiredByDelivery := &models.Invoice{ID: uuid.New(), DeliveredAt: &delivered}
	bareInv := &models.Invoice{ID: uuid.New()}

	customs := []models.RecoveryCustomSetting{
		{ID: uuid.New(), InvoiceID: activeInv.ID, Days: 10},
		{ID: uuid.New(), InvoiceID: expiredInv.ID, Days: 10},
		{ID: uuid.New(), InvoiceID: expiredByDelivery.ID, Days: 10},
		{ID: uuid.New(), InvoiceID: bareInv.ID, Days: 10},
	}
	byID := map[uuid.UUID]*models.Invoice{
		activeInv.ID:         activeInv,
		expiredInv.ID:        expiredInv,
		expiredByDelivery.ID: expiredByDelivery,
		bareInv.ID:           bareInv,
	}

	part := PartitionCustomDelays(customs, byID, now)
	require.Len(t, part.Expired, 2)
	require.Len(t, part.Active, 2)
}
