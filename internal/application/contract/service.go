// Package contract implements the contract ledger use cases: default
// contract synthesis, revisions, activation, cancellation, signatures and
// rendering.
package contract

import (
	"context"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/contract"
	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/domain/organization"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultRenderTimeout = 8 * time.Second

// Service handles contract ledger operations. Every method takes the
// caller's resolved scope and enforces it against the contract's unit.
type Service struct {
	tx            shared.Transactor
	contracts     contract.Repository
	signatures    contract.SignatureRepository
	units         organization.UnitRepository
	renderer      document.Renderer
	archive       document.Archive
	events        shared.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
	renderTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithArchive archives rendered contracts.
func WithArchive(a document.Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithEventPublisher publishes contract events after commit.
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRenderTimeout bounds each render call.
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.renderTimeout = d
		}
	}
}

// NewService creates a contract Service.
func NewService(
	tx shared.Transactor,
	contracts contract.Repository,
	signatures contract.SignatureRepository,
	units organization.UnitRepository,
	renderer document.Renderer,
	opts ...Option,
) *Service {
	s := &Service{
		tx:            tx,
		contracts:     contracts,
		signatures:    signatures,
		units:         units,
		renderer:      renderer,
		logger:        zap.NewNop(),
		now:           time.Now,
		renderTimeout: defaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindActive returns the ACTIVE contract of the unit for contractType.
// When none exists one is synthesized from the type's default template
// and stored ACTIVE and unsigned.
func (s *Service) FindActive(ctx context.Context, scope access.Scope, unitID uuid.UUID, contractType string) (*ContractResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "find_active",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrUnitID, unitID)
	defer span.End()

	if err := scope.Require(unitID); err != nil {
		return nil, err
	}
	unit, err := s.units.FindByID(ctx, scope.TenantID, unitID)
	if err != nil {
		return nil, err
	}
	contractType = contract.NormalizeType(contractType)

	var result *contract.Contract
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.contracts.LockUnitType(ctx, scope.TenantID, unitID, contractType); err != nil {
			return err
		}
		existing, err := s.contracts.FindActive(ctx, scope.TenantID, unitID, contractType, true)
		if err == nil {
			result = existing
			return nil
		}
		if !shared.IsNotFound(err) {
			return err
		}

		now := s.now()
		c, err := contract.NewContract(scope.TenantID, unitID, contractType, contract.DefaultFields(contractType, unit.Name, now), now)
		if err != nil {
			return err
		}
		c.SetCreatedBy(scope.UserID)
		if err := c.Activate(now); err != nil {
			return err
		}
		if err := s.contracts.Create(ctx, c); err != nil {
			return err
		}
		result = c
		s.logger.Info("Default contract created",
			zap.String("contract_id", c.ID.String()),
			zap.String("unit_id", unitID.String()),
			zap.String("type", contractType),
		)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, result)
	resp := ToContractResponse(result)
	return &resp, nil
}

// Create creates a contract group. It requires an unrestricted scope. A
// non-draft contract is activated immediately and conflicts with any
// ACTIVE contract of the same unit and type.
func (s *Service) Create(ctx context.Context, scope access.Scope, req CreateContractRequest) (*ContractResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "create",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrUnitID, req.UnitID)
	defer span.End()

	if err := scope.RequireAll(); err != nil {
		return nil, err
	}
	if _, err := s.units.FindByID(ctx, scope.TenantID, req.UnitID); err != nil {
		return nil, err
	}
	contractType := contract.NormalizeType(req.Type)

	var created *contract.Contract
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.contracts.LockUnitType(ctx, scope.TenantID, req.UnitID, contractType); err != nil {
			return err
		}
		if !req.Draft {
			if err := s.ensureNoActive(ctx, scope.TenantID, req.UnitID, contractType, uuid.Nil); err != nil {
				return err
			}
		}
		now := s.now()
		c, err := contract.NewContract(scope.TenantID, req.UnitID, contractType, req.Fields.toDomain(), now)
		if err != nil {
			return err
		}
		createdBy := req.CreatedBy
		if createdBy == uuid.Nil {
			createdBy = scope.UserID
		}
		c.SetCreatedBy(createdBy)
		if !req.Draft {
			if err := c.Activate(now); err != nil {
				return err
			}
		}
		if err := s.contracts.Create(ctx, c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, created)
	resp := ToContractResponse(created)
	return &resp, nil
}

// Edit forks the next revision of a contract with new fields. The edited
// revision becomes EXPIRED and keeps its signatures; the new revision is
// unsigned.
func (s *Service) Edit(ctx context.Context, scope access.Scope, contractID uuid.UUID, fields FieldsInput) (*ContractResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "edit",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrContractID, contractID)
	defer span.End()

	var next *contract.Contract
	var prev *contract.Contract
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.loadLocked(ctx, scope, contractID)
		if err != nil {
			return err
		}
		n, err := c.Fork(fields.toDomain(), s.now())
		if err != nil {
			return err
		}
		n.SetCreatedBy(scope.UserID)
		// The old revision must leave ACTIVE before the new one is inserted.
		if err := s.contracts.Save(ctx, c); err != nil {
			return err
		}
		if err := s.contracts.Create(ctx, n); err != nil {
			return err
		}
		prev, next = c, n
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, prev, next)
	s.logger.Info("Contract revised",
		zap.String("group_id", next.GroupID.String()),
		zap.Int("revision", next.Revision),
	)
	resp := ToContractResponse(next)
	return &resp, nil
}

// Activate moves a PENDING contract to ACTIVE.
func (s *Service) Activate(ctx context.Context, scope access.Scope, contractID uuid.UUID) (*ContractResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "activate",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrContractID, contractID)
	defer span.End()

	var c *contract.Contract
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.loadLocked(ctx, scope, contractID); err != nil {
			return err
		}
		if err := s.ensureNoActive(ctx, scope.TenantID, c.UnitID, c.Type, c.ID); err != nil {
			return err
		}
		if err := c.Activate(s.now()); err != nil {
			return err
		}
		return s.contracts.Save(ctx, c)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, c)
	resp := ToContractResponse(c)
	return &resp, nil
}

// Cancel cancels a PENDING or ACTIVE contract.
func (s *Service) Cancel(ctx context.Context, scope access.Scope, contractID uuid.UUID, reason string) (*ContractResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "cancel",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrContractID, contractID)
	defer span.End()

	var c *contract.Contract
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.loadLocked(ctx, scope, contractID); err != nil {
			return err
		}
		if err := c.Cancel(reason, s.now()); err != nil {
			return err
		}
		return s.contracts.Save(ctx, c)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, c)
	resp := ToContractResponse(c)
	return &resp, nil
}

// Sign records a signature against an ACTIVE, unsigned contract. The
// contract update and the signature record commit together.
func (s *Service) Sign(ctx context.Context, scope access.Scope, contractID uuid.UUID, req SignRequest) (*SignatureResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "sign",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrContractID, contractID)
	defer span.End()

	signer := contract.Signer{ID: req.SignerID, Type: req.SignerType, Name: req.SignerName, Document: req.SignerDocument}
	if signer.ID == uuid.Nil {
		signer.ID = scope.UserID
	}
	origin := contract.Origin{IPAddress: req.IPAddress, UserAgent: req.UserAgent}

	var c *contract.Contract
	var sig *contract.Signature
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.loadLocked(ctx, scope, contractID); err != nil {
			return err
		}
		if sig, err = c.Sign(signer, origin, s.now()); err != nil {
			return err
		}
		if err := s.contracts.Save(ctx, c); err != nil {
			return err
		}
		return s.signatures.Create(ctx, sig)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, c)
	s.logger.Info("Contract signed",
		zap.String("contract_id", c.ID.String()),
		zap.String("signer_id", sig.SignerID.String()),
		zap.Int("revision", sig.RevisionSigned),
	)
	resp := ToSignatureResponse(sig)
	return &resp, nil
}

// Get returns one contract revision.
func (s *Service) Get(ctx context.Context, scope access.Scope, contractID uuid.UUID) (*ContractResponse, error) {
	c, err := s.load(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	resp := ToContractResponse(c)
	return &resp, nil
}

// List returns contracts within the caller's scope.
func (s *Service) List(ctx context.Context, scope access.Scope, filter ListContractsFilter) ([]ContractResponse, int64, error) {
	units, restricted := scope.UnitFilter()
	f := contract.Filter{
		Filter:     listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir),
		UnitIDs:    units,
		Restricted: restricted,
		Type:       filter.Type,
		Status:     filter.Status,
	}
	items, total, err := s.contracts.List(ctx, scope.TenantID, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ContractResponse, len(items))
	for i := range items {
		out[i] = ToContractResponse(&items[i])
	}
	return out, total, nil
}

// Revisions returns every revision of the contract's group, oldest first.
func (s *Service) Revisions(ctx context.Context, scope access.Scope, contractID uuid.UUID) ([]ContractResponse, error) {
	c, err := s.load(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	revs, err := s.contracts.FindRevisions(ctx, scope.TenantID, c.GroupID)
	if err != nil {
		return nil, err
	}
	out := make([]ContractResponse, len(revs))
	for i := range revs {
		out[i] = ToContractResponse(&revs[i])
	}
	return out, nil
}

// History lists the signatures of every revision of the contract's
// group, ordered by signing time.
func (s *Service) History(ctx context.Context, scope access.Scope, contractID uuid.UUID) ([]SignatureResponse, error) {
	c, err := s.load(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	sigs, err := s.signatures.FindByGroup(ctx, scope.TenantID, c.GroupID)
	if err != nil {
		return nil, err
	}
	out := make([]SignatureResponse, len(sigs))
	for i := range sigs {
		out[i] = ToSignatureResponse(&sigs[i])
	}
	return out, nil
}

// SignatureStatus reports whether signerID still owes a signature on the
// ACTIVE revision of (unit, type).
func (s *Service) SignatureStatus(ctx context.Context, scope access.Scope, unitID uuid.UUID, contractType string, signerID uuid.UUID) (*SignatureStatusResponse, error) {
	if err := scope.Require(unitID); err != nil {
		return nil, err
	}
	active, err := s.contracts.FindActive(ctx, scope.TenantID, unitID, contractType, false)
	if err != nil {
		return nil, err
	}
	history, err := s.signatures.FindByGroup(ctx, scope.TenantID, active.GroupID)
	if err != nil {
		return nil, err
	}
	st := contract.StatusFor(active, history, signerID)
	return &SignatureStatusResponse{
		ContractID:    st.ContractID,
		ActiveVersion: st.ActiveRevision,
		SignedVersion: st.SignedRevision,
		Pending:       st.Pending,
		LastSignedAt:  st.LastSignedAt,
	}, nil
}

// RenderPDF renders a contract revision. The output is archived under
// contracts/<group>/<revision>.pdf when an archive is configured; an
// archive failure is logged and does not fail the call.
func (s *Service) RenderPDF(ctx context.Context, scope access.Scope, contractID uuid.UUID) ([]byte, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "contract", "render_pdf",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrContractID, contractID)
	defer span.End()

	c, err := s.load(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	unit, err := s.units.FindByID(ctx, scope.TenantID, c.UnitID)
	if err != nil {
		return nil, err
	}
	data := document.ContractData{
		ContractID:            c.ID,
		UnitName:              unit.Name,
		Title:                 c.Fields.Title,
		Body:                  c.Fields.Body,
		VersionLabel:          c.VersionLabel(),
		Status:                string(c.Status),
		MonthlyValue:          c.Fields.MonthlyValue,
		TransactionFeePercent: c.Fields.TransactionFeePercent,
		ValidFrom:             c.Fields.ValidFrom,
		ValidUntil:            c.Fields.ValidUntil,
		Signed:                c.Signed,
		SignerName:            c.SignerName,
		SignerDocument:        c.SignerDocument,
		SignedAt:              c.SignedAt,
	}

	pdf, err := document.RenderWithin(ctx, s.renderer, s.renderTimeout, document.KindContract, data)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if s.archive != nil {
		key := document.ContractKey(c.GroupID, c.Revision)
		if err := s.archive.Upload(ctx, key, pdf, document.ContentTypePDF); err != nil {
			s.logger.Warn("Failed to archive contract PDF", zap.String("key", key), zap.Error(err))
		}
	}
	return pdf, nil
}

func (s *Service) load(ctx context.Context, scope access.Scope, contractID uuid.UUID) (*contract.Contract, error) {
	if scope.IsDenied() {
		return nil, scope.Require(uuid.Nil)
	}
	c, err := s.contracts.FindByID(ctx, scope.TenantID, contractID)
	if err != nil {
		return nil, err
	}
	if err := scope.Require(c.UnitID); err != nil {
		return nil, err
	}
	return c, nil
}

// loadLocked loads the contract inside the current transaction after
// serializing on its (unit, type), then re-reads it so the state checked
// is the committed one.
func (s *Service) loadLocked(ctx context.Context, scope access.Scope, contractID uuid.UUID) (*contract.Contract, error) {
	c, err := s.load(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.contracts.LockUnitType(ctx, scope.TenantID, c.UnitID, c.Type); err != nil {
		return nil, err
	}
	return s.contracts.FindByID(ctx, scope.TenantID, contractID)
}

func (s *Service) ensureNoActive(ctx context.Context, tenantID, unitID uuid.UUID, contractType string, except uuid.UUID) error {
	existing, err := s.contracts.FindActive(ctx, tenantID, unitID, contractType, true)
	switch {
	case err == nil && existing.ID != except:
		return shared.Conflict("an active contract of this type already exists for the unit")
	case err == nil, shared.IsNotFound(err):
		return nil
	default:
		return err
	}
}

func (s *Service) publish(ctx context.Context, sources ...*contract.Contract) {
	es := make([]shared.EventSource, 0, len(sources))
	for _, c := range sources {
		if c != nil {
			es = append(es, c)
		}
	}
	if err := shared.PublishAndClear(ctx, s.events, es...); err != nil {
		s.logger.Warn("Failed to publish contract events", zap.Error(err))
	}
}

func listFilter(page, size int, orderBy, orderDir string) shared.Filter {
	f := shared.DefaultFilter()
	if page > 0 {
		f.Page = page
	}
	if size > 0 {
		f.PageSize = min(size, 100)
	}
	if orderBy != "" {
		f.OrderBy = orderBy
	}
	if orderDir != "" {
		f.OrderDir = orderDir
	}
	return f
}
