package router

import (
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/interfaces/http/handler"
	"github.com/academy/billing/internal/interfaces/http/middleware"
)

// Handlers are the API handlers served by the router.
type Handlers struct {
	Contracts     *handler.ContractHandler
	Subscriptions *handler.SubscriptionHandler
	Cards         *handler.CardHandler
	Invoices      *handler.InvoiceHandler
	Jobs          *handler.BillingJobHandler
}

// staff are the roles that administer units.
var staff = []access.Role{access.RoleMaster, access.RoleFranchiseOwner, access.RoleUnitManager}

// BillingGroups returns the route groups of the billing API. Scope checks
// happen in the services; the role gates only refuse roles that can never
// succeed.
func BillingGroups(h Handlers) []*DomainGroup {
	staffOnly := middleware.RequireRoles(staff...)

	contracts := NewDomainGroup("contracts", "/contracts")
	contracts.GET("", h.Contracts.List)
	contracts.POST("", staffOnly, h.Contracts.Create)
	contracts.GET("/active", h.Contracts.Active)
	contracts.GET("/signature-status", h.Contracts.SignatureStatus)
	contracts.GET("/:id", h.Contracts.Get)
	contracts.PUT("/:id", staffOnly, h.Contracts.Edit)
	contracts.POST("/:id/activate", staffOnly, h.Contracts.Activate)
	contracts.POST("/:id/cancel", staffOnly, h.Contracts.Cancel)
	contracts.POST("/:id/signatures", h.Contracts.Sign)
	contracts.GET("/:id/signatures", h.Contracts.History)
	contracts.GET("/:id/revisions", h.Contracts.Revisions)
	contracts.GET("/:id/pdf", h.Contracts.PDF)

	subscriptions := NewDomainGroup("subscriptions", "/subscriptions")
	subscriptions.GET("", h.Subscriptions.List)
	subscriptions.POST("", staffOnly, h.Subscriptions.Create)
	subscriptions.GET("/:id", h.Subscriptions.Get)
	subscriptions.POST("/:id/pause", staffOnly, h.Subscriptions.Pause)
	subscriptions.POST("/:id/resume", staffOnly, h.Subscriptions.Resume)
	subscriptions.POST("/:id/cancel", staffOnly, h.Subscriptions.Cancel)
	subscriptions.POST("/:id/renew", staffOnly, h.Subscriptions.Renew)
	subscriptions.POST("/:id/change-value", staffOnly, h.Subscriptions.ChangeValue)
	subscriptions.POST("/:id/payments", staffOnly, h.Subscriptions.RecordPayment)
	subscriptions.POST("/:id/charge", staffOnly, h.Subscriptions.Charge)
	subscriptions.PUT("/:id/card", staffOnly, h.Cards.Store)

	invoices := NewDomainGroup("invoices", "/invoices")
	invoices.GET("", h.Invoices.List)
	invoices.GET("/summary", h.Invoices.Summary)
	invoices.GET("/:id", h.Invoices.Get)
	invoices.POST("/:id/payments", staffOnly, h.Invoices.RecordPayment)
	invoices.POST("/:id/cancel", staffOnly, h.Invoices.Cancel)
	invoices.GET("/:id/receipt", h.Invoices.Receipt)

	jobs := NewDomainGroup("billing", "/billing").Use(staffOnly)
	jobs.POST("/generate", h.Jobs.Generate)
	jobs.POST("/charge-due", h.Jobs.ChargeDue)
	jobs.POST("/mark-overdue", h.Jobs.MarkOverdue)
	jobs.POST("/expire", h.Jobs.Expire)

	return []*DomainGroup{contracts, subscriptions, invoices, jobs}
}
