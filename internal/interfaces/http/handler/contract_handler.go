package handler

import (
	"context"
	"fmt"

	appcontract "github.com/academy/billing/internal/application/contract"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/contract"
	"github.com/academy/billing/internal/interfaces/http/dto"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractService is the contract ledger as the HTTP layer uses it.
type ContractService interface {
	FindActive(ctx context.Context, scope access.Scope, unitID uuid.UUID, contractType string) (*appcontract.ContractResponse, error)
	Create(ctx context.Context, scope access.Scope, req appcontract.CreateContractRequest) (*appcontract.ContractResponse, error)
	Edit(ctx context.Context, scope access.Scope, id uuid.UUID, fields appcontract.FieldsInput) (*appcontract.ContractResponse, error)
	Activate(ctx context.Context, scope access.Scope, id uuid.UUID) (*appcontract.ContractResponse, error)
	Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*appcontract.ContractResponse, error)
	Sign(ctx context.Context, scope access.Scope, id uuid.UUID, req appcontract.SignRequest) (*appcontract.SignatureResponse, error)
	Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*appcontract.ContractResponse, error)
	List(ctx context.Context, scope access.Scope, filter appcontract.ListContractsFilter) ([]appcontract.ContractResponse, int64, error)
	Revisions(ctx context.Context, scope access.Scope, id uuid.UUID) ([]appcontract.ContractResponse, error)
	History(ctx context.Context, scope access.Scope, id uuid.UUID) ([]appcontract.SignatureResponse, error)
	SignatureStatus(ctx context.Context, scope access.Scope, unitID uuid.UUID, contractType string, signerID uuid.UUID) (*appcontract.SignatureStatusResponse, error)
	RenderPDF(ctx context.Context, scope access.Scope, id uuid.UUID) ([]byte, error)
}

// ContractHandler serves /contracts.
type ContractHandler struct {
	BaseHandler
	contracts ContractService
}

// NewContractHandler creates a ContractHandler.
func NewContractHandler(contracts ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// ContractFieldsRequest is the editable part of a contract.
type ContractFieldsRequest struct {
	Title                 string          `json:"title" binding:"required,max=200"`
	Body                  string          `json:"body" binding:"required"`
	ValidFrom             string          `json:"valid_from" binding:"required,datetime=2006-01-02"`
	ValidUntil            string          `json:"valid_until" binding:"omitempty,datetime=2006-01-02"`
	MonthlyValue          decimal.Decimal `json:"monthly_value"`
	TransactionFeePercent decimal.Decimal `json:"transaction_fee_percent"`
}

func (r ContractFieldsRequest) toInput() (appcontract.FieldsInput, error) {
	from, err := parseDate(r.ValidFrom)
	if err != nil {
		return appcontract.FieldsInput{}, err
	}
	until, err := optionalDate(r.ValidUntil)
	if err != nil {
		return appcontract.FieldsInput{}, err
	}
	return appcontract.FieldsInput{
		Title:                 r.Title,
		Body:                  r.Body,
		ValidFrom:             from,
		ValidUntil:            until,
		MonthlyValue:          r.MonthlyValue,
		TransactionFeePercent: r.TransactionFeePercent,
	}, nil
}

// CreateContractRequest is the body of POST /contracts.
type CreateContractRequest struct {
	UnitID string `json:"unit_id" binding:"required,uuid"`
	Type   string `json:"type" binding:"omitempty,max=50"`
	Draft  bool   `json:"draft"`
	ContractFieldsRequest
}

// CancelRequest carries a cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// SignContractRequest is the body of POST /contracts/:id/signatures.
type SignContractRequest struct {
	SignerID       string `json:"signer_id" binding:"required,uuid"`
	SignerType     string `json:"signer_type" binding:"required,oneof=UNIT_ADMIN FRANCHISEE MANAGER STUDENT GUARDIAN"`
	SignerName     string `json:"signer_name" binding:"required,max=200"`
	SignerDocument string `json:"signer_document" binding:"omitempty,max=20"`
}

// ListContractsQuery are the query parameters of GET /contracts.
type ListContractsQuery struct {
	dto.ListRequest
	Type   string `form:"type"`
	Status string `form:"status" binding:"omitempty,oneof=PENDING ACTIVE CANCELLED EXPIRED"`
}

// UnitTypeQuery selects the contract of a unit and type.
type UnitTypeQuery struct {
	UnitID string `form:"unit_id" binding:"required,uuid"`
	Type   string `form:"type"`
}

// SignatureStatusQuery are the query parameters of
// GET /contracts/signature-status.
type SignatureStatusQuery struct {
	UnitTypeQuery
	SignerID string `form:"signer_id" binding:"required,uuid"`
}

// List handles GET /contracts.
func (h *ContractHandler) List(c *gin.Context) {
	var q ListContractsQuery
	if !bindQuery(c, &q) {
		return
	}
	q.Normalize()
	items, total, err := h.contracts.List(c.Request.Context(), middleware.GetScope(c), appcontract.ListContractsFilter{
		Page:     q.Page,
		PageSize: q.PageSize,
		OrderBy:  q.OrderBy,
		OrderDir: q.OrderDir,
		Type:     q.Type,
		Status:   contract.Status(q.Status),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, q.Page, q.PageSize)
}

// Create handles POST /contracts.
func (h *ContractHandler) Create(c *gin.Context) {
	var req CreateContractRequest
	if !bind(c, &req) {
		return
	}
	fields, err := req.toInput()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	scope := middleware.GetScope(c)
	resp, err := h.contracts.Create(c.Request.Context(), scope, appcontract.CreateContractRequest{
		UnitID:    uuid.MustParse(req.UnitID),
		Type:      req.Type,
		Fields:    fields,
		Draft:     req.Draft,
		CreatedBy: scope.UserID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Active handles GET /contracts/active. The default contract of the unit
// is created on first access.
func (h *ContractHandler) Active(c *gin.Context) {
	var q UnitTypeQuery
	if !bindQuery(c, &q) {
		return
	}
	resp, err := h.contracts.FindActive(c.Request.Context(), middleware.GetScope(c), uuid.MustParse(q.UnitID), q.Type)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// SignatureStatus handles GET /contracts/signature-status.
func (h *ContractHandler) SignatureStatus(c *gin.Context) {
	var q SignatureStatusQuery
	if !bindQuery(c, &q) {
		return
	}
	resp, err := h.contracts.SignatureStatus(c.Request.Context(), middleware.GetScope(c),
		uuid.MustParse(q.UnitID), q.Type, uuid.MustParse(q.SignerID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Get handles GET /contracts/:id.
func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.contracts.Get(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Edit handles PUT /contracts/:id and answers with the new revision.
func (h *ContractHandler) Edit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ContractFieldsRequest
	if !bind(c, &req) {
		return
	}
	fields, err := req.toInput()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	resp, err := h.contracts.Edit(c.Request.Context(), middleware.GetScope(c), id, fields)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Activate handles POST /contracts/:id/activate.
func (h *ContractHandler) Activate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.contracts.Activate(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel handles POST /contracts/:id/cancel.
func (h *ContractHandler) Cancel(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.contracts.Cancel(c.Request.Context(), middleware.GetScope(c), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Sign handles POST /contracts/:id/signatures. The origin is taken from
// the request.
func (h *ContractHandler) Sign(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req SignContractRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.contracts.Sign(c.Request.Context(), middleware.GetScope(c), id, appcontract.SignRequest{
		SignerID:       uuid.MustParse(req.SignerID),
		SignerType:     contract.SignerType(req.SignerType),
		SignerName:     req.SignerName,
		SignerDocument: req.SignerDocument,
		IPAddress:      c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// History handles GET /contracts/:id/signatures.
func (h *ContractHandler) History(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.contracts.History(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Revisions handles GET /contracts/:id/revisions.
func (h *ContractHandler) Revisions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.contracts.Revisions(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// PDF handles GET /contracts/:id/pdf.
func (h *ContractHandler) PDF(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	data, err := h.contracts.RenderPDF(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SendPDF(c, fmt.Sprintf("contrato-%s.pdf", id), data)
}
