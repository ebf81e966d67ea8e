package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/internal/cache"
	"example.com/distribo/services/recouvrement/internal/metrics"
	"example.com/distribo/services/recouvrement/internal/models"
	"example.com/distribo/services/recouvrement/internal/recovery"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

// Guard errors surfaced to the API layer.
var (
	ErrLastGlobalSetting = errors.New("the last global delay setting cannot be deleted")
	ErrInvalidDays       = errors.New("delay must be a positive number of days")
)

// EventPublisher publishes domain events to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, body interface{}) error
}

// InvoiceIndexer pushes an invoice into the search index after it changed
type InvoiceIndexer interface {
	Index(ctx context.Context, number string) error
}

// UrgentSettings echoes the thresholds behind an urgent-invoices response
type UrgentSettings struct {
	DefaultDays int       `json:"defaultDays"`
	CutoffDate  time.Time `json:"cutoffDate"`
}

// UrgentResult is the outcome of the urgent-invoices query
type UrgentResult struct {
	Invoices []models.Invoice
	Settings UrgentSettings
}

// RecomputeResult summarizes a batch urgency recompute
type RecomputeResult struct {
	Examined int `json:"examined"`
	Updated  int `json:"updated"`
}

// CustomDelaysResult lists still-active custom delays and counts expired ones
type CustomDelaysResult struct {
	Active       []models.RecoveryCustomSetting
	ExpiredCount int
}

// UrgencyEvent is published after every batch recompute
type UrgencyEvent struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Urgent    bool      `json:"urgent"`
}

// PaymentEvent is the payload consumed from the payment queue
type PaymentEvent struct {
	InvoiceNumber string    `json:"invoice_number"`
	Amount        string    `json:"amount"`
	PaidAt        time.Time `json:"paid_at"`
}

// RecoveryService owns the urgency and delay-settings workflows
type RecoveryService interface {
	UrgentInvoices(ctx context.Context) (*UrgentResult, error)
	RecomputeUrgency(ctx context.Context) (*RecomputeResult, error)
	RecomputeInvoiceUrgency(ctx context.Context, number string) error

	ListSettings(ctx context.Context) ([]models.RecoveryDelaySetting, error)
	GetSettingByRoot(ctx context.Context, rootName string) (*models.RecoveryDelaySetting, error)
	CreateSetting(ctx context.Context, days int, rootID *uuid.UUID) (*models.RecoveryDelaySetting, error)
	UpdateSetting(ctx context.Context, id uuid.UUID, days int, rootID *uuid.UUID) (*models.RecoveryDelaySetting, error)
	DeleteSetting(ctx context.Context, id uuid.UUID) error

	ActiveCustomDelays(ctx context.Context) (*CustomDelaysResult, error)
	SetCustomDelay(ctx context.Context, invoiceNumber string, days int) (*models.RecoveryCustomSetting, error)
	RemoveCustomDelay(ctx context.Context, id uuid.UUID) error
	CleanupExpiredCustomDelays(ctx context.Context) (int64, error)

	HandlePaymentMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

type recoveryService struct {
	invoiceRepo  repositories.InvoiceRepository
	settingsRepo repositories.SettingsRepository
	cache        *cache.RedisCache
	publisher    EventPublisher
	indexer      InvoiceIndexer
	collector    *metrics.Metrics
	tracer       tracing.Tracer
	now          func() time.Time
}

// NewRecoveryService creates a new recovery service
func NewRecoveryService(
	invoiceRepo repositories.InvoiceRepository,
	settingsRepo repositories.SettingsRepository,
	redisCache *cache.RedisCache,
	publisher EventPublisher,
	indexer InvoiceIndexer,
	collector *metrics.Metrics,
	tracer tracing.Tracer,
) RecoveryService {
	return &recoveryService{
		invoiceRepo:  invoiceRepo,
		settingsRepo: settingsRepo,
		cache:        redisCache,
		publisher:    publisher,
		indexer:      indexer,
		collector:    collector,
		tracer:       tracer,
		now:          time.Now,
	}
}

// loadSettings fetches the delay settings, cache-aside over Redis. Cache
// failures are logged and ignored.
func (s *recoveryService) loadSettings(ctx context.Context) ([]models.RecoveryDelaySetting, error) {
	var settings []models.RecoveryDelaySetting
	if err := s.cache.Get(ctx, cache.DelaySettingsCacheKey, &settings); err == nil {
		return settings, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("Failed to read delay settings from cache")
	}

	settings, err := s.settingsRepo.ListSettings(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cache.DelaySettingsCacheKey, settings, time.Minute); err != nil {
		log.Warn().Err(err).Msg("Failed to cache delay settings")
	}
	return settings, nil
}

func (s *recoveryService) invalidateSettingsCache(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.DelaySettingsCacheKey); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate delay settings cache")
	}
}

// UrgentInvoices returns the unpaid invoices currently overdue, together
// with the default threshold and cutoff behind the computation. Returns
// recovery.ErrNotConfigured when no settings exist at all.
func (s *recoveryService) UrgentInvoices(ctx context.Context) (*UrgentResult, error) {
	txn := s.tracer.StartTransaction("urgent-invoices")
	defer s.tracer.EndTransaction(txn)

	settings, err := s.loadSettings(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if len(settings) == 0 {
		return nil, recovery.ErrNotConfigured
	}

	invoices, err := s.invoiceRepo.FindUnpaid(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	now := s.now()
	var urgent []models.Invoice
	for i := range invoices {
		ev := recovery.Evaluate(&invoices[i], settings, invoices[i].CustomSetting, now)
		if ev.Urgent {
			urgent = append(urgent, invoices[i])
		}
	}

	defaultDays := recovery.GlobalDays(settings)
	return &UrgentResult{
		Invoices: urgent,
		Settings: UrgentSettings{
			DefaultDays: defaultDays,
			CutoffDate:  now.AddDate(0, 0, -defaultDays),
		},
	}, nil
}

// RecomputeUrgency recomputes the urgency flag for every unpaid invoice and
// persists only the flags that changed. Idempotent: a second run over
// unchanged data writes nothing.
func (s *recoveryService) RecomputeUrgency(ctx context.Context) (*RecomputeResult, error) {
	txn := s.tracer.StartTransaction("recompute-urgency")
	defer s.tracer.EndTransaction(txn)

	settings, err := s.loadSettings(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if len(settings) == 0 {
		return nil, recovery.ErrNotConfigured
	}

	invoices, err := s.invoiceRepo.FindUnpaid(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	customs := make(map[uuid.UUID]*models.RecoveryCustomSetting)
	for i := range invoices {
		if invoices[i].CustomSetting != nil {
			customs[invoices[i].ID] = invoices[i].CustomSetting
		}
	}

	changes := recovery.ComputeFlagChanges(invoices, settings, customs, s.now())

	span := s.tracer.StartSpan("persist-flag-changes", txn)
	updated := 0
	for _, ch := range changes {
		if err := s.invoiceRepo.UpdateUrgency(ctx, ch.InvoiceID, ch.Urgent); err != nil {
			span.End()
			s.tracer.RecordError(txn, err)
			return nil, errors.Wrap(err, "failed to persist urgency flag")
		}
		updated++

		if s.publisher != nil {
			event := UrgencyEvent{InvoiceID: ch.InvoiceID, Urgent: ch.Urgent}
			if err := s.publisher.Publish(ctx, event); err != nil {
				log.Warn().Err(err).Str("invoice_id", ch.InvoiceID.String()).Msg("Failed to publish urgency event")
			}
		}
	}
	span.End()

	s.collector.IncrementCounter(metrics.UrgencyRecomputes)
	s.collector.IncrementCounterBy(metrics.UrgencyFlagWrites, int64(updated))

	if urgent, err := s.invoiceRepo.FindUrgent(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to count urgent invoices")
	} else {
		s.collector.SetGauge(metrics.UrgentInvoices, int64(len(urgent)))
	}

	log.Info().
		Int("examined", len(invoices)).
		Int("updated", updated).
		Msg("Urgency recompute complete")

	return &RecomputeResult{Examined: len(invoices), Updated: updated}, nil
}

// RecomputeInvoiceUrgency recomputes the flag of a single invoice, used when
// a payment event arrives for it.
func (s *recoveryService) RecomputeInvoiceUrgency(ctx context.Context, number string) error {
	invoice, err := s.invoiceRepo.GetByNumber(ctx, number)
	if err != nil {
		return err
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	ev := recovery.Evaluate(invoice, settings, invoice.CustomSetting, s.now())
	if ev.Urgent == invoice.IsUrgent {
		return nil
	}

	if err := s.invoiceRepo.UpdateUrgency(ctx, invoice.ID, ev.Urgent); err != nil {
		return err
	}
	s.collector.IncrementCounter(metrics.UrgencyFlagWrites)
	return nil
}

// ListSettings lists every delay setting
func (s *recoveryService) ListSettings(ctx context.Context) ([]models.RecoveryDelaySetting, error) {
	return s.loadSettings(ctx)
}

// GetSettingByRoot gets the setting scoped to a root name
func (s *recoveryService) GetSettingByRoot(ctx context.Context, rootName string) (*models.RecoveryDelaySetting, error) {
	return s.settingsRepo.GetSettingByRoot(ctx, rootName)
}

// CreateSetting creates a delay setting
func (s *recoveryService) CreateSetting(ctx context.Context, days int, rootID *uuid.UUID) (*models.RecoveryDelaySetting, error) {
	if days <= 0 {
		return nil, ErrInvalidDays
	}

	setting := &models.RecoveryDelaySetting{
		ID:     uuid.New(),
		Days:   days,
		RootID: rootID,
	}
	if err := s.settingsRepo.CreateSetting(ctx, setting); err != nil {
		return nil, err
	}

	s.invalidateSettingsCache(ctx)
	return setting, nil
}

// UpdateSetting updates a delay setting
func (s *recoveryService) UpdateSetting(ctx context.Context, id uuid.UUID, days int, rootID *uuid.UUID) (*models.RecoveryDelaySetting, error) {
	if days <= 0 {
		return nil, ErrInvalidDays
	}

	setting := &models.RecoveryDelaySetting{ID: id, Days: days, RootID: rootID}
	if err := s.settingsRepo.UpdateSetting(ctx, setting); err != nil {
		return nil, err
	}

	s.invalidateSettingsCache(ctx)
	return s.settingsRepo.GetSetting(ctx, id)
}

// DeleteSetting deletes a delay setting, refusing to remove the sole
// remaining global one.
func (s *recoveryService) DeleteSetting(ctx context.Context, id uuid.UUID) error {
	setting, err := s.settingsRepo.GetSetting(ctx, id)
	if err != nil {
		return err
	}

	if setting.IsGlobal() {
		count, err := s.settingsRepo.CountGlobalSettings(ctx)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastGlobalSetting
		}
	}

	if err := s.settingsRepo.DeleteSetting(ctx, id); err != nil {
		return err
	}

	s.invalidateSettingsCache(ctx)
	return nil
}

// loadCustomDelayContext fetches the custom settings with their invoices.
func (s *recoveryService) loadCustomDelayContext(ctx context.Context) ([]models.RecoveryCustomSetting, map[uuid.UUID]*models.Invoice, error) {
	customs, err := s.settingsRepo.ListCustomSettings(ctx)
	if err != nil {
		return nil, nil, err
	}

	invoicesByID := make(map[uuid.UUID]*models.Invoice, len(customs))
	for _, c := range customs {
		invoice, err := s.invoiceRepo.GetByID(ctx, c.InvoiceID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			return nil, nil, err
		}
		invoicesByID[c.InvoiceID] = invoice
	}
	return customs, invoicesByID, nil
}

// ActiveCustomDelays returns the custom delays that are still in effect and
// the count of expired ones. Expired overrides are deleted by the scheduled
// cleanup, not here.
func (s *recoveryService) ActiveCustomDelays(ctx context.Context) (*CustomDelaysResult, error) {
	customs, invoicesByID, err := s.loadCustomDelayContext(ctx)
	if err != nil {
		return nil, err
	}

	part := recovery.PartitionCustomDelays(customs, invoicesByID, s.now())
	return &CustomDelaysResult{
		Active:       part.Active,
		ExpiredCount: len(part.Expired),
	}, nil
}

// SetCustomDelay creates or replaces the per-invoice override
func (s *recoveryService) SetCustomDelay(ctx context.Context, invoiceNumber string, days int) (*models.RecoveryCustomSetting, error) {
	if days <= 0 {
		return nil, ErrInvalidDays
	}

	invoice, err := s.invoiceRepo.GetByNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}

	return s.settingsRepo.UpsertCustomSetting(ctx, invoice.ID, days)
}

// RemoveCustomDelay deletes a custom delay by ID
func (s *recoveryService) RemoveCustomDelay(ctx context.Context, id uuid.UUID) error {
	return s.settingsRepo.DeleteCustomSetting(ctx, id)
}

// CleanupExpiredCustomDelays deletes the expired overrides. Runs from the
// scheduled worker.
func (s *recoveryService) CleanupExpiredCustomDelays(ctx context.Context) (int64, error) {
	customs, invoicesByID, err := s.loadCustomDelayContext(ctx)
	if err != nil {
		return 0, err
	}

	part := recovery.PartitionCustomDelays(customs, invoicesByID, s.now())
	if len(part.Expired) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(part.Expired))
	for _, c := range part.Expired {
		ids = append(ids, c.ID)
	}

	deleted, err := s.settingsRepo.DeleteCustomSettings(ctx, ids)
	if err != nil {
		return 0, err
	}

	s.collector.IncrementCounterBy(metrics.CustomDelayExpired, deleted)
	log.Info().Int64("deleted", deleted).Msg("Expired custom delays removed")
	return deleted, nil
}

// HandlePaymentMessage processes a payment-recorded event from the bus and
// refreshes the urgency flag of the affected invoice.
func (s *recoveryService) HandlePaymentMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var event PaymentEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal payment event")
	}
	if event.InvoiceNumber == "" {
		return errors.New("payment event has no invoice number")
	}

	if err := s.RecomputeInvoiceUrgency(ctx, event.InvoiceNumber); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Warn().Str("invoice", event.InvoiceNumber).Msg("Payment event for unknown invoice")
			return nil
		}
		return errors.Wrap(err, "failed to recompute urgency for payment event")
	}

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, event.InvoiceNumber); err != nil {
			log.Warn().Err(err).Str("invoice", event.InvoiceNumber).Msg("Failed to reindex invoice after payment")
		}
	}

	s.collector.IncrementCounter(metrics.PaymentEvents)
	return nil
}
