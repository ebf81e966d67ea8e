package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/distribo/services/recouvrement/internal/metrics"
	"example.com/distribo/services/recouvrement/internal/models"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) ActiveDepotAssignments(ctx context.Context) ([]models.DepotAssignment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.DepotAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) ActivePatternAssignments(ctx context.Context, userID uuid.UUID) ([]models.Assignment, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Assignment), args.Error(1)
}

func newTestInvoiceService(invoiceRepo *MockInvoiceRepository, assignmentRepo *MockAssignmentRepository) *invoiceService {
	return &invoiceService{
		invoiceRepo:    invoiceRepo,
		assignmentRepo: assignmentRepo,
		collector:      metrics.NewMetrics(),
		tracer:         &tracing.NewRelicTracer{},
	}
}

func depotInvoice(number string, depotID uuid.UUID) models.Invoice {
	return models.Invoice{ID: uuid.New(), Number: number, AccountNumber: "411" + number, DepotID: &depotID}
}

func TestListAppliesDepotScope(t *testing.T) {
	mockInvoices := new(MockInvoiceRepository)
	mockAssignments := new(MockAssignmentRepository)

	user := models.User{ID: uuid.New(), Role: models.RoleRecouvrement}
	myDepot := uuid.New()
	otherDepot := uuid.New()

	mine := depotInvoice("F-100", myDepot)
	foreign := depotInvoice("F-101", otherDepot)

	mockAssignments.On("ActiveDepotAssignments", mock.Anything).
		Return([]models.DepotAssignment{{UserID: user.ID, DepotID: myDepot, Active: true}}, nil)
	mockAssignments.On("ActivePatternAssignments", mock.Anything, user.ID).
		Return([]models.Assignment{}, nil)
	mockInvoices.On("List", mock.Anything, mock.Anything).
		Return([]models.Invoice{mine, foreign}, nil)

	svc := newTestInvoiceService(mockInvoices, mockAssignments)

	invoices, err := svc.List(context.Background(), user, repositories.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, "F-100", invoices[0].Number)
}

func TestListWithoutAssignmentsReturnsEmpty(t *testing.T) {
	mockInvoices := new(MockInvoiceRepository)
	mockAssignments := new(MockAssignmentRepository)

	user := models.User{ID: uuid.New(), Role: models.RoleRecouvrement}

	mockAssignments.On("ActiveDepotAssignments", mock.Anything).
		Return([]models.DepotAssignment{}, nil)
	mockAssignments.On("ActivePatternAssignments", mock.Anything, user.ID).
		Return([]models.Assignment{}, nil)

	svc := newTestInvoiceService(mockInvoices, mockAssignments)

	invoices, err := svc.List(context.Background(), user, repositories.InvoiceFilter{})
	require.NoError(t, err)
	require.Empty(t, invoices)
	mockInvoices.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestAdminListSkipsAssignmentLookup(t *testing.T) {
	mockInvoices := new(MockInvoiceRepository)
	mockAssignments := new(MockAssignmentRepository)

	user := models.User{ID: uuid.New(), Role: models.RoleAdmin}
	invoices := []models.Invoice{depotInvoice("F-200", uuid.New()), depotInvoice("F-201", uuid.New())}

	mockInvoices.On("List", mock.Anything, mock.Anything).Return(invoices, nil)

	svc := newTestInvoiceService(mockInvoices, mockAssignments)

	result, err := svc.List(context.Background(), user, repositories.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, result, 2)
	mockAssignments.AssertNotCalled(t, "ActiveDepotAssignments", mock.Anything)
}

func TestGetDeniedByScopeReadsAsNotFound(t *testing.T) {
	mockInvoices := new(MockInvoiceRepository)
	mockAssignments := new(MockAssignmentRepository)

	user := models.User{ID: uuid.New(), Role: models.RoleRecouvrement}
	myDepot := uuid.New()
	foreign := depotInvoice("F-300", uuid.New())

	mockAssignments.On("ActiveDepotAssignments", mock.Anything).
		Return([]models.DepotAssignment{{UserID: user.ID, DepotID: myDepot, Active: true}}, nil)
	mockAssignments.On("ActivePatternAssignments", mock.Anything, user.ID).
		Return([]models.Assignment{}, nil)
	mockInvoices.On("GetByNumber", mock.Anything, "F-300").Return(&foreign, nil)

	svc := newTestInvoiceService(mockInvoices, mockAssignments)

	_, err := svc.Get(context.Background(), user, "F-300")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGetAllowedByPatternAssignment(t *testing.T) {
	mockInvoices := new(MockInvoiceRepository)
	mockAssignments := new(MockAssignmentRepository)

	user := models.User{ID: uuid.New(), Role: models.RoleRecouvrement}
	invoice := models.Invoice{ID: uuid.New(), Number: "F-400", AccountNumber: "411ABC42"}

	mockAssignments.On("ActiveDepotAssignments", mock.Anything).
		Return([]models.DepotAssignment{}, nil)
	mockAssignments.On("ActivePatternAssignments", mock.Anything, user.ID).
		Return([]models.Assignment{{UserID: user.ID, Pattern: "ABC", Active: true}}, nil)
	mockInvoices.On("GetByNumber", mock.Anything, "F-400").Return(&invoice, nil)

	svc := newTestInvoiceService(mockInvoices, mockAssignments)

	got, err := svc.Get(context.Background(), user, "F-400")
	require.NoError(t, err)
	require.Equal(t, "F-400", got.Number)
}

func TestSearchUnavailableWithoutIndex(t *testing.T) {
	svc := newTestInvoiceService(new(MockInvoiceRepository), new(MockAssignmentRepository))

	_, err := svc.Search(context.Background(), models.User{Role: models.RoleAdmin}, "dupont")
	require.Error(t, err)
}

func TestSyncIndexWithoutIndexIsNoOp(t *testing.T) {
	mockInvoices := new(MockInvoiceRepository)
	svc := newTestInvoiceService(mockInvoices, new(MockAssignmentRepository))

	indexed, err := svc.SyncIndex(context.Background())
	require.NoError(t, err)
	require.Zero(t, indexed)
	mockInvoices.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}
