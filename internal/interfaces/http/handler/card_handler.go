package handler

import (
	"context"
	"strings"

	appbilling "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CardVault validates and stores payment cards.
type CardVault interface {
	ValidateAndStoreCard(ctx context.Context, scope access.Scope, id uuid.UUID, req appbilling.StoreCardRequest) (*appbilling.StoreCardResult, error)
}

// CardHandler serves PUT /subscriptions/:id/card.
type CardHandler struct {
	BaseHandler
	vault CardVault
}

// NewCardHandler creates a CardHandler.
func NewCardHandler(vault CardVault) *CardHandler {
	return &CardHandler{vault: vault}
}

// CardRequest holds raw card data. It is never logged.
type CardRequest struct {
	Number          string `json:"number" binding:"required,numeric,min=13,max=19"`
	HolderName      string `json:"holder_name" binding:"required,min=3,max=100"`
	ExpirationMonth string `json:"expiration_month" binding:"required,len=2,numeric"`
	ExpirationYear  string `json:"expiration_year" binding:"required,len=4,numeric"`
	SecurityCode    string `json:"security_code" binding:"required,numeric,min=3,max=4"`
}

// AddressRequest is the billing address of the card holder.
type AddressRequest struct {
	Street       string `json:"street" binding:"required,max=200"`
	Number       string `json:"number" binding:"required,max=20"`
	Complement   string `json:"complement" binding:"omitempty,max=100"`
	Neighborhood string `json:"neighborhood" binding:"required,max=100"`
	City         string `json:"city" binding:"required,max=100"`
	State        string `json:"state" binding:"required,br_state"`
	ZipCode      string `json:"zip_code" binding:"required,cep"`
}

// AntifraudRequest identifies the antifraud session opened by the client.
type AntifraudRequest struct {
	SessionID string `json:"session_id" binding:"required,max=200"`
	Kind      string `json:"kind" binding:"required,oneof=IDPAY THREEDS CLEARSALE"`
}

// StoreCardRequest is the body of PUT /subscriptions/:id/card.
type StoreCardRequest struct {
	Card      CardRequest      `json:"card"`
	Address   AddressRequest   `json:"address"`
	Antifraud AntifraudRequest `json:"antifraud"`
}

func (r StoreCardRequest) toInput(ip string) appbilling.StoreCardRequest {
	return appbilling.StoreCardRequest{
		Card: billing.CardFields{
			Number:     r.Card.Number,
			HolderName: strings.TrimSpace(r.Card.HolderName),
			ExpMonth:   r.Card.ExpirationMonth,
			ExpYear:    r.Card.ExpirationYear,
			CVV:        r.Card.SecurityCode,
		},
		Address: billing.Address{
			Street:       r.Address.Street,
			Number:       r.Address.Number,
			Complement:   r.Address.Complement,
			Neighborhood: r.Address.Neighborhood,
			City:         r.Address.City,
			State:        strings.ToUpper(r.Address.State),
			ZipCode:      strings.ReplaceAll(r.Address.ZipCode, "-", ""),
		},
		Antifraud: billing.AntifraudSession{
			SessionID: r.Antifraud.SessionID,
			Kind:      billing.AntifraudKind(r.Antifraud.Kind),
		},
		IPAddress: ip,
	}
}

// Store handles PUT /subscriptions/:id/card. A 402 carries the provider
// reason in details.reason_code.
func (h *CardHandler) Store(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req StoreCardRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.vault.ValidateAndStoreCard(c.Request.Context(), middleware.GetScope(c), id, req.toInput(c.ClientIP()))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
