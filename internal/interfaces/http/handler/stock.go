package handler

import (
	"errors"
	"strconv"
	"time"

	stockapp "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// parseDate parses a date string, accepting RFC3339 and plain ISO dates
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parsePositiveInt parses a non-negative integer query parameter
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("value cannot be negative")
	}
	return n, nil
}

// StockHandler handles stock ledger API endpoints
type StockHandler struct {
	BaseHandler
	stockService *stockapp.StockService
	expiryWindow int
}

// NewStockHandler creates a new StockHandler. expiryWindowDays is the default
// near-expiry window used when the request does not specify one.
func NewStockHandler(stockService *stockapp.StockService, expiryWindowDays int) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		expiryWindow: expiryWindowDays,
	}
}

// RecordMovementRequest is the request body for appending one movement
type RecordMovementRequest struct {
	ProductID    string  `json:"product_id" binding:"required,uuid"`
	BranchID     string  `json:"branch_id" binding:"required,uuid"`
	WarehouseID  string  `json:"warehouse_id" binding:"omitempty,uuid"`
	MovementType string  `json:"movement_type" binding:"required"`
	Quantity     float64 `json:"quantity" binding:"required,gt=0"`
	UnitCost     float64 `json:"unit_cost" binding:"gte=0"`

	BatchNumber     string `json:"batch_number"`
	LotNumber       string `json:"lot_number"`
	SerialNumber    string `json:"serial_number"`
	ManufactureDate string `json:"manufacture_date"`
	ExpiryDate      string `json:"expiry_date"`

	DocumentKind string `json:"document_kind"`
	DocumentID   string `json:"document_id"`
	Remarks      string `json:"remarks"`

	IdempotencyKey string `json:"idempotency_key"`
}

// IssueStockRequest is the request body for a multi-batch issuance.
// MovementType must be an outgoing kind; empty defaults to SALE.
type IssueStockRequest struct {
	ProductID    string  `json:"product_id" binding:"required,uuid"`
	BranchID     string  `json:"branch_id" binding:"required,uuid"`
	WarehouseID  string  `json:"warehouse_id" binding:"omitempty,uuid"`
	MovementType string  `json:"movement_type"`
	Quantity     float64 `json:"quantity" binding:"required,gt=0"`

	DocumentKind string `json:"document_kind" binding:"required"`
	DocumentID   string `json:"document_id" binding:"required"`
	Remarks      string `json:"remarks"`

	IdempotencyKey string `json:"idempotency_key"`
}

// MovementResponse represents a ledger entry in API responses
type MovementResponse struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	ProductID    string          `json:"product_id"`
	BranchID     string          `json:"branch_id"`
	WarehouseID  *string         `json:"warehouse_id,omitempty"`
	MovementType string          `json:"movement_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`

	BatchNumber     string `json:"batch_number,omitempty"`
	LotNumber       string `json:"lot_number,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	ManufactureDate string `json:"manufacture_date,omitempty"`
	ExpiryDate      string `json:"expiry_date,omitempty"`

	DocumentKind string `json:"document_kind,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	Remarks      string `json:"remarks,omitempty"`

	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func toMovementResponse(m *ledger.StockMovement) MovementResponse {
	resp := MovementResponse{
		ID:           m.ID.String(),
		TenantID:     m.TenantID.String(),
		ProductID:    m.ProductID.String(),
		BranchID:     m.BranchID.String(),
		MovementType: m.MovementType.String(),
		Quantity:     m.Quantity,
		UnitCost:     m.UnitCost,
		TotalCost:    m.TotalCost,
		BatchNumber:  m.BatchNumber,
		LotNumber:    m.LotNumber,
		SerialNumber: m.SerialNumber,
		DocumentKind: m.DocumentKind.String(),
		DocumentID:   m.DocumentID,
		Remarks:      m.Remarks,
		CreatedBy:    m.CreatedBy.String(),
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
	}
	if m.WarehouseID != nil {
		id := m.WarehouseID.String()
		resp.WarehouseID = &id
	}
	if m.ManufactureDate != nil {
		resp.ManufactureDate = m.ManufactureDate.Format("2006-01-02")
	}
	if m.ExpiryDate != nil {
		resp.ExpiryDate = m.ExpiryDate.Format("2006-01-02")
	}
	return resp
}

func toMovementResponses(movements []*ledger.StockMovement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	return out
}

// IssueStockResponse reports a committed issuance
type IssueStockResponse struct {
	Policy        string             `json:"policy"`
	Movements     []MovementResponse `json:"movements"`
	TotalQuantity decimal.Decimal    `json:"total_quantity"`
	TotalCost     decimal.Decimal    `json:"total_cost"`
}

// QuantityResponse reports the on-hand quantity of one stock scope
type QuantityResponse struct {
	ProductID   string          `json:"product_id"`
	BranchID    string          `json:"branch_id"`
	WarehouseID *string         `json:"warehouse_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// RecordMovement appends one validated movement to the ledger
func (h *StockHandler) RecordMovement(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}
	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid user")
		return
	}

	var req RecordMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	input := stockapp.RecordMovementInput{
		TenantID:       tenantID,
		MovementType:   ledger.MovementType(req.MovementType),
		Quantity:       decimal.NewFromFloat(req.Quantity),
		UnitCost:       decimal.NewFromFloat(req.UnitCost),
		BatchNumber:    req.BatchNumber,
		LotNumber:      req.LotNumber,
		SerialNumber:   req.SerialNumber,
		Document:       ledger.DocumentRef{Kind: ledger.DocumentKind(req.DocumentKind), ID: req.DocumentID},
		Remarks:        req.Remarks,
		ActorID:        actorID,
		IdempotencyKey: req.IdempotencyKey,
	}

	input.ProductID, err = uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}
	input.BranchID, err = uuid.Parse(req.BranchID)
	if err != nil {
		h.BadRequest(c, "Invalid branch ID format")
		return
	}
	if req.WarehouseID != "" {
		warehouseID, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID format")
			return
		}
		input.WarehouseID = &warehouseID
	}
	if req.ManufactureDate != "" {
		d, err := parseDate(req.ManufactureDate)
		if err != nil {
			h.BadRequest(c, "Invalid manufacture date format")
			return
		}
		input.ManufactureDate = &d
	}
	if req.ExpiryDate != "" {
		d, err := parseDate(req.ExpiryDate)
		if err != nil {
			h.BadRequest(c, "Invalid expiry date format")
			return
		}
		input.ExpiryDate = &d
	}

	movement, err := h.stockService.RecordMovement(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toMovementResponse(movement))
}

// IssueStock allocates the requested quantity across batches and appends one
// outgoing movement per consumed batch
func (h *StockHandler) IssueStock(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}
	actorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid user")
		return
	}

	var req IssueStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	input := stockapp.IssueStockInput{
		TenantID:       tenantID,
		MovementType:   ledger.MovementType(req.MovementType),
		Quantity:       decimal.NewFromFloat(req.Quantity),
		Document:       ledger.DocumentRef{Kind: ledger.DocumentKind(req.DocumentKind), ID: req.DocumentID},
		Remarks:        req.Remarks,
		ActorID:        actorID,
		IdempotencyKey: req.IdempotencyKey,
	}

	input.ProductID, err = uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}
	input.BranchID, err = uuid.Parse(req.BranchID)
	if err != nil {
		h.BadRequest(c, "Invalid branch ID format")
		return
	}
	if req.WarehouseID != "" {
		warehouseID, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID format")
			return
		}
		input.WarehouseID = &warehouseID
	}

	result, err := h.stockService.IssueStock(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, IssueStockResponse{
		Policy:        result.Policy.String(),
		Movements:     toMovementResponses(result.Movements),
		TotalQuantity: result.TotalQuantity,
		TotalCost:     result.TotalCost,
	})
}

// GetQuantity returns the current on-hand quantity of one stock scope
func (h *StockHandler) GetQuantity(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	scope := ledger.StockScope{TenantID: tenantID}
	scope.ProductID, err = uuid.Parse(c.Query("product_id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}
	scope.BranchID, err = uuid.Parse(c.Query("branch_id"))
	if err != nil {
		h.BadRequest(c, "Invalid branch ID format")
		return
	}
	if s := c.Query("warehouse_id"); s != "" {
		warehouseID, err := uuid.Parse(s)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID format")
			return
		}
		scope.WarehouseID = &warehouseID
	}

	quantity, err := h.stockService.CurrentQuantity(c.Request.Context(), scope)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := QuantityResponse{
		ProductID: scope.ProductID.String(),
		BranchID:  scope.BranchID.String(),
		Quantity:  quantity,
	}
	if scope.WarehouseID != nil {
		id := scope.WarehouseID.String()
		resp.WarehouseID = &id
	}
	h.Success(c, resp)
}

// positionFilter builds the position narrowing from query parameters. Reports
// the bad request itself and returns false on a malformed ID.
func (h *StockHandler) positionFilter(c *gin.Context) (ledger.PositionFilter, bool) {
	var filter ledger.PositionFilter
	ids := []struct {
		param string
		label string
		dest  **uuid.UUID
	}{
		{"product_id", "product", &filter.ProductID},
		{"branch_id", "branch", &filter.BranchID},
		{"warehouse_id", "warehouse", &filter.WarehouseID},
	}
	for _, f := range ids {
		s := c.Query(f.param)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			h.BadRequest(c, "Invalid "+f.label+" ID format")
			return filter, false
		}
		*f.dest = &id
	}
	return filter, true
}

// ListPositions returns the tenant's open positions, optionally narrowed to a
// product, branch and/or warehouse
func (h *StockHandler) ListPositions(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}
	filter, ok := h.positionFilter(c)
	if !ok {
		return
	}

	positions, err := h.stockService.Positions(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, positions)
}

// GetValuation reports the inventory value of the tenant's open positions,
// optionally narrowed to a product, branch and/or warehouse
func (h *StockHandler) GetValuation(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}
	filter, ok := h.positionFilter(c)
	if !ok {
		return
	}

	report, err := h.stockService.Valuation(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// GetExpiryAlerts reports expired and near-expiry positions
func (h *StockHandler) GetExpiryAlerts(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	windowDays := h.expiryWindow
	if s := c.Query("window_days"); s != "" {
		n, err := parsePositiveInt(s)
		if err != nil {
			h.BadRequest(c, "Invalid window_days")
			return
		}
		windowDays = n
	}

	report, err := h.stockService.ExpiryAlerts(c.Request.Context(), tenantID, windowDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// GetConservationAudit verifies that open positions account for the full
// signed movement total of the tenant's ledger
func (h *StockHandler) GetConservationAudit(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	report, err := h.stockService.ConservationAudit(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ListMovements lists the tenant's ledger entries with pagination and filters
func (h *StockHandler) ListMovements(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	filter := ledger.MovementFilter{Filter: shared.DefaultFilter()}
	if s := c.Query("page"); s != "" {
		if n, err := parsePositiveInt(s); err == nil && n > 0 {
			filter.Page = n
		}
	}
	if s := c.Query("page_size"); s != "" {
		if n, err := parsePositiveInt(s); err == nil && n > 0 {
			filter.PageSize = n
		}
	}
	if s := c.Query("order_by"); s != "" {
		filter.OrderBy = s
	}
	if s := c.Query("order_dir"); s != "" {
		filter.OrderDir = s
	}
	if s := c.Query("product_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			h.BadRequest(c, "Invalid product ID format")
			return
		}
		filter.ProductID = &id
	}
	if s := c.Query("branch_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			h.BadRequest(c, "Invalid branch ID format")
			return
		}
		filter.BranchID = &id
	}
	if s := c.Query("warehouse_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID format")
			return
		}
		filter.WarehouseID = &id
	}
	if s := c.Query("movement_type"); s != "" {
		mt := ledger.MovementType(s)
		if !mt.IsValid() {
			h.BadRequest(c, "Unknown movement type")
			return
		}
		filter.MovementType = &mt
	}
	filter.BatchNumber = c.Query("batch_number")
	filter.SerialNumber = c.Query("serial_number")
	if s := c.Query("from"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			h.BadRequest(c, "Invalid from date format")
			return
		}
		filter.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			h.BadRequest(c, "Invalid to date format")
			return
		}
		filter.To = &t
	}

	page, err := h.stockService.ListMovements(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]MovementResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toMovementResponse(&page.Items[i]))
	}
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// GetMovement returns one ledger entry by ID
func (h *StockHandler) GetMovement(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid movement ID format")
		return
	}

	movement, err := h.stockService.GetMovement(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toMovementResponse(movement))
}

// ListMovementsByDocument returns all ledger entries originated by one
// business document
func (h *StockHandler) ListMovementsByDocument(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	ref := ledger.DocumentRef{
		Kind: ledger.DocumentKind(c.Param("kind")),
		ID:   c.Param("doc_id"),
	}

	movements, err := h.stockService.MovementsForDocument(c.Request.Context(), tenantID, ref)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]MovementResponse, 0, len(movements))
	for i := range movements {
		items = append(items, toMovementResponse(&movements[i]))
	}
	h.Success(c, items)
}
