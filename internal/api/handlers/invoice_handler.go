package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/distribo/services/recouvrement/internal/api/middleware"
	"example.com/distribo/services/recouvrement/internal/models"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/services"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

const dateLayout = "2006-01-02"

// InvoiceHandler handles invoice listing and detail requests
type InvoiceHandler struct {
	invoiceService services.InvoiceService
	tracer         tracing.Tracer
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoiceService services.InvoiceService, tracer tracing.Tracer) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, tracer: tracer}
}

// HandleListInvoices lists the invoices visible to the caller, filtered by
// status, depot, search text and date range.
func (h *InvoiceHandler) HandleListInvoices(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-invoices")
	defer h.tracer.EndTransaction(txn)

	user, ok := middleware.CurrentUser(c)
	if !ok {
		RespondError(c, ErrUnauthorized)
		return
	}

	filter, err := parseInvoiceFilter(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	h.tracer.AddAttribute(txn, "user_id", user.ID.String())
	h.tracer.AddAttribute(txn, "role", string(user.Role))

	invoices, err := h.invoiceService.List(c.Request.Context(), user, filter)
	if err != nil {
		h.tracer.RecordError(txn, err)
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// HandleGetInvoice returns a single invoice by number
func (h *InvoiceHandler) HandleGetInvoice(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		RespondError(c, ErrUnauthorized)
		return
	}

	invoice, err := h.invoiceService.Get(c.Request.Context(), user, c.Param("number"))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "invoice": invoice})
}

// HandleSearchInvoices runs a free-text search over the invoice index
func (h *InvoiceHandler) HandleSearchInvoices(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		RespondError(c, ErrUnauthorized)
		return
	}

	text := c.Query("q")
	if text == "" {
		RespondError(c, NewValidationError("query parameter 'q' is required"))
		return
	}

	invoices, err := h.invoiceService.Search(c.Request.Context(), user, text)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

func parseInvoiceFilter(c *gin.Context) (repositories.InvoiceFilter, error) {
	filter := repositories.InvoiceFilter{
		DeliveryStatus: models.DeliveryStatus(c.Query("status")),
		PaymentStatus:  models.PaymentStatus(c.Query("paymentStatus")),
		Search:         c.Query("search"),
	}

	if depot := c.Query("depot"); depot != "" {
		depotID, err := uuid.Parse(depot)
		if err != nil {
			return filter, NewValidationError("invalid depot id")
		}
		filter.DepotID = &depotID
	}

	if start := c.Query("startDate"); start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return filter, NewValidationError("invalid startDate, expected YYYY-MM-DD")
		}
		filter.StartDate = &t
	}

	if end := c.Query("endDate"); end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return filter, NewValidationError("invalid endDate, expected YYYY-MM-DD")
		}
		// Include the whole end day
		t = t.Add(24*time.Hour - time.Nanosecond)
		filter.EndDate = &t
	}

	return filter, nil
}

// RegisterRoutes registers the handler's routes
func (h *InvoiceHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/invoices", h.HandleListInvoices)
	group.GET("/invoices/search", h.HandleSearchInvoices)
	group.GET("/invoices/:number", h.HandleGetInvoice)
}
