package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/internal/access"
	"example.com/distribo/services/recouvrement/internal/cache"
	"example.com/distribo/services/recouvrement/internal/metrics"
	"example.com/distribo/services/recouvrement/internal/models"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/search"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

const searchResultLimit = 50

// InvoiceService serves invoice queries with the visibility scope applied
// before any other filter.
type InvoiceService interface {
	List(ctx context.Context, user models.User, filter repositories.InvoiceFilter) ([]models.Invoice, error)
	Get(ctx context.Context, user models.User, number string) (*models.Invoice, error)
	Search(ctx context.Context, user models.User, text string) ([]models.Invoice, error)
	Index(ctx context.Context, number string) error
	SyncIndex(ctx context.Context) (int, error)
}

type invoiceService struct {
	invoiceRepo    repositories.InvoiceRepository
	assignmentRepo repositories.AssignmentRepository
	cache          *cache.RedisCache
	elasticClient  *search.ElasticClient
	collector      *metrics.Metrics
	tracer         tracing.Tracer
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	invoiceRepo repositories.InvoiceRepository,
	assignmentRepo repositories.AssignmentRepository,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	collector *metrics.Metrics,
	tracer tracing.Tracer,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:    invoiceRepo,
		assignmentRepo: assignmentRepo,
		cache:          redisCache,
		elasticClient:  elasticClient,
		collector:      collector,
		tracer:         tracer,
	}
}

// scopeInputs is the cacheable raw material of a user's scope.
type scopeInputs struct {
	DepotAssignments   []models.DepotAssignment `json:"depot_assignments"`
	PatternAssignments []models.Assignment      `json:"pattern_assignments"`
}

// scopeFor computes the user's visibility scope, caching the assignment rows
// briefly so listing bursts don't refetch them on every request.
func (s *invoiceService) scopeFor(ctx context.Context, user models.User) (access.Scope, error) {
	if user.Role == models.RoleAdmin {
		return access.BuildScope(user, nil, nil), nil
	}

	var inputs scopeInputs
	key := cache.ScopeCacheKey(user.ID)
	if err := s.cache.Get(ctx, key, &inputs); err == nil {
		s.collector.IncrementCounter(metrics.ScopeCacheHits)
		return access.BuildScope(user, inputs.DepotAssignments, inputs.PatternAssignments), nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("Failed to read scope inputs from cache")
	}

	depotAssignments, err := s.assignmentRepo.ActiveDepotAssignments(ctx)
	if err != nil {
		return access.Scope{}, err
	}

	var patternAssignments []models.Assignment
	if user.Role == models.RoleRecouvrement {
		patternAssignments, err = s.assignmentRepo.ActivePatternAssignments(ctx, user.ID)
		if err != nil {
			return access.Scope{}, err
		}
	}

	inputs = scopeInputs{DepotAssignments: depotAssignments, PatternAssignments: patternAssignments}
	if err := s.cache.Set(ctx, key, inputs, 30*time.Second); err != nil {
		log.Warn().Err(err).Msg("Failed to cache scope inputs")
	}

	return access.BuildScope(user, depotAssignments, patternAssignments), nil
}

// List lists the invoices visible to the user. The scope is applied on top
// of the SQL-level filters; an empty result for a user with no assignments
// is a valid, successful response.
func (s *invoiceService) List(ctx context.Context, user models.User, filter repositories.InvoiceFilter) ([]models.Invoice, error) {
	txn := s.tracer.StartTransaction("list-invoices")
	defer s.tracer.EndTransaction(txn)

	scope, err := s.scopeFor(ctx, user)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if scope.Kind == access.ScopeNone {
		return []models.Invoice{}, nil
	}

	invoices, err := s.invoiceRepo.List(ctx, filter)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.collector.IncrementCounter(metrics.InvoicesListed)
	return access.Filter(scope, invoices), nil
}

// Get returns one invoice if the user's scope allows it. A scope-denied
// invoice reads as absent, the response must not reveal its existence.
func (s *invoiceService) Get(ctx context.Context, user models.User, number string) (*models.Invoice, error) {
	scope, err := s.scopeFor(ctx, user)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if !scope.Allows(invoice) {
		return nil, repositories.ErrNotFound
	}
	return invoice, nil
}

// Search runs a free-text Elasticsearch query, hydrates the matching rows
// from the database and applies the scope there.
func (s *invoiceService) Search(ctx context.Context, user models.User, text string) ([]models.Invoice, error) {
	txn := s.tracer.StartTransaction("search-invoices")
	defer s.tracer.EndTransaction(txn)

	if s.elasticClient == nil {
		return nil, errors.New("search is unavailable")
	}

	scope, err := s.scopeFor(ctx, user)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if scope.Kind == access.ScopeNone {
		return []models.Invoice{}, nil
	}

	numbers, err := s.elasticClient.SearchInvoiceNumbers(ctx, text, searchResultLimit)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	invoices, err := s.invoiceRepo.ListByNumbers(ctx, numbers)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.collector.IncrementCounter(metrics.InvoicesSearched)
	return access.Filter(scope, invoices), nil
}

// Index pushes one invoice into the search index, called whenever an
// invoice changes (payment events). Without a configured index it is a
// no-op.
func (s *invoiceService) Index(ctx context.Context, number string) error {
	if s.elasticClient == nil {
		return nil
	}

	invoice, err := s.invoiceRepo.GetByNumber(ctx, number)
	if err != nil {
		return err
	}
	return s.indexInvoice(ctx, invoice)
}

// SyncIndex reindexes every invoice. Runs from the scheduled worker so the
// search index converges even when individual Index calls were missed.
func (s *invoiceService) SyncIndex(ctx context.Context) (int, error) {
	if s.elasticClient == nil {
		return 0, nil
	}

	invoices, err := s.invoiceRepo.List(ctx, repositories.InvoiceFilter{})
	if err != nil {
		return 0, err
	}

	indexed := 0
	for i := range invoices {
		if err := s.indexInvoice(ctx, &invoices[i]); err != nil {
			log.Warn().Err(err).Str("invoice", invoices[i].Number).Msg("Failed to index invoice")
			continue
		}
		indexed++
	}

	s.collector.IncrementCounterBy(metrics.InvoicesIndexed, int64(indexed))
	return indexed, nil
}

func (s *invoiceService) indexInvoice(ctx context.Context, invoice *models.Invoice) error {
	depotName := ""
	if invoice.Depot != nil {
		depotName = invoice.Depot.Name
	}
	return s.elasticClient.IndexInvoice(ctx, invoice, depotName)
}
