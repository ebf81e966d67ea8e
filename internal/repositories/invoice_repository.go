package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/distribo/services/recouvrement/internal/models"
)

// InvoiceFilter carries the SQL-level filters of the invoice listing. The
// visibility scope is applied by the caller on top of these.
type InvoiceFilter struct {
	DeliveryStatus models.DeliveryStatus
	PaymentStatus  models.PaymentStatus
	DepotID        *uuid.UUID
	Search         string
	StartDate      *time.Time
	EndDate        *time.Time
}

// InvoiceRepository provides access to invoice data
type InvoiceRepository interface {
	List(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error)
	ListByNumbers(ctx context.Context, numbers []string) ([]models.Invoice, error)
	GetByNumber(ctx context.Context, number string) (*models.Invoice, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindUnpaid(ctx context.Context) ([]models.Invoice, error)
	FindUrgent(ctx context.Context) ([]models.Invoice, error)
	UpdateUrgency(ctx context.Context, id uuid.UUID, urgent bool) error
}

type invoiceRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db, readOnlyDB *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *invoiceRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Depot").
		Preload("Payments").
		Preload("DeliveryNotes").
		Preload("DeliveryNotes.Lines").
		Preload("CustomSetting")
}

// List lists invoices matching the filter
func (r *invoiceRepository) List(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	q := r.withRelations(r.readOnlyDB.WithContext(ctx))

	if filter.DeliveryStatus != "" {
		q = q.Where("delivery_status = ?", filter.DeliveryStatus)
	}
	if filter.PaymentStatus != "" {
		q = q.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.DepotID != nil {
		q = q.Where("depot_id = ?", *filter.DepotID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("number ILIKE ? OR account_number ILIKE ?", like, like)
	}
	if filter.StartDate != nil {
		q = q.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("created_at <= ?", *filter.EndDate)
	}

	var invoices []models.Invoice
	if err := q.Order("created_at DESC").Find(&invoices).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list invoices")
	}
	return invoices, nil
}

// ListByNumbers loads the invoices for a set of invoice numbers
func (r *invoiceRepository) ListByNumbers(ctx context.Context, numbers []string) ([]models.Invoice, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var invoices []models.Invoice
	err := r.withRelations(r.readOnlyDB.WithContext(ctx)).
		Where("number IN ?", numbers).
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list invoices by number")
	}
	return invoices, nil
}

// GetByNumber gets an invoice by its unique number
func (r *invoiceRepository) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.withRelations(r.readOnlyDB.WithContext(ctx)).
		Where("number = ?", number).
		First(&invoice).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get invoice by number")
	}
	return &invoice, nil
}

// GetByID gets an invoice by ID
func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.withRelations(r.readOnlyDB.WithContext(ctx)).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get invoice by ID")
	}
	return &invoice, nil
}

// FindUnpaid returns every invoice that is not fully paid
func (r *invoiceRepository) FindUnpaid(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.withRelations(r.readOnlyDB.WithContext(ctx)).
		Where("payment_status <> ?", models.PaymentPaid).
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find unpaid invoices")
	}
	return invoices, nil
}

// FindUrgent returns invoices currently flagged urgent
func (r *invoiceRepository) FindUrgent(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.withRelations(r.readOnlyDB.WithContext(ctx)).
		Where("is_urgent = ?", true).
		Order("created_at ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find urgent invoices")
	}
	return invoices, nil
}

// UpdateUrgency persists the recomputed urgency flag for one invoice
func (r *invoiceRepository) UpdateUrgency(ctx context.Context, id uuid.UUID, urgent bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Update("is_urgent", urgent)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update invoice urgency")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
