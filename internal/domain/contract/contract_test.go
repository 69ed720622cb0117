package contract

import (
	"testing"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func validFields() Fields {
	return Fields{
		Title:                 "Contrato",
		Body:                  "<p>corpo</p>",
		MonthlyValue:          decimal.NewFromInt(150),
		TransactionFeePercent: decimal.RequireFromString("2.5"),
	}
}

func activeContract(t *testing.T) *Contract {
	t.Helper()
	c, err := NewContract(uuid.New(), uuid.New(), "Standard", validFields(), now)
	require.NoError(t, err)
	require.NoError(t, c.Activate(now))
	c.ClearDomainEvents()
	return c
}

func signer() Signer {
	return Signer{ID: uuid.New(), Type: SignerUnitAdmin, Name: "Maria Souza", Document: "12345678900"}
}

func TestNewContract(t *testing.T) {
	t.Run("starts pending at revision 1", func(t *testing.T) {
		c, err := NewContract(uuid.New(), uuid.New(), "  Franchise ", validFields(), now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, c.Status)
		assert.Equal(t, 1, c.Revision)
		assert.Equal(t, c.ID, c.GroupID)
		assert.Equal(t, "franchise", c.Type)
		assert.Equal(t, "1.0", c.VersionLabel())
		assert.Equal(t, now, c.Fields.ValidFrom)
		assert.False(t, c.Signed)
		require.Len(t, c.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeContractCreated, c.GetDomainEvents()[0].EventType())
	})

	t.Run("empty type defaults to standard", func(t *testing.T) {
		c, err := NewContract(uuid.New(), uuid.New(), "", validFields(), now)
		require.NoError(t, err)
		assert.Equal(t, DefaultType, c.Type)
	})

	t.Run("validates fields", func(t *testing.T) {
		f := validFields()
		f.Title = " "
		_, err := NewContract(uuid.New(), uuid.New(), "standard", f, now)
		assert.True(t, shared.IsInvalidInput(err))

		f = validFields()
		f.TransactionFeePercent = decimal.NewFromInt(101)
		_, err = NewContract(uuid.New(), uuid.New(), "standard", f, now)
		assert.True(t, shared.IsInvalidInput(err))

		_, err = NewContract(uuid.New(), uuid.Nil, "standard", validFields(), now)
		assert.True(t, shared.IsInvalidInput(err))
	})
}

func TestContract_Activate(t *testing.T) {
	c := activeContract(t)
	assert.Equal(t, StatusActive, c.Status)
	err := c.Activate(now)
	assert.True(t, shared.IsInvalidState(err))
}

func TestContract_Sign(t *testing.T) {
	t.Run("first signature succeeds", func(t *testing.T) {
		c := activeContract(t)
		s := signer()
		sig, err := c.Sign(s, Origin{IPAddress: "10.0.0.1", UserAgent: "tests"}, now)
		require.NoError(t, err)
		assert.True(t, c.Signed)
		assert.Equal(t, "Maria Souza", c.SignerName)
		require.NotNil(t, c.SignedAt)
		assert.Equal(t, c.ID, sig.ContractID)
		assert.Equal(t, c.GroupID, sig.GroupID)
		assert.Equal(t, 1, sig.RevisionSigned)
		assert.Equal(t, "10.0.0.1", sig.IPAddress)
		assert.True(t, sig.Accepted)
	})

	t.Run("second signature is rejected and leaves the first intact", func(t *testing.T) {
		c := activeContract(t)
		_, err := c.Sign(signer(), Origin{}, now)
		require.NoError(t, err)
		firstAt := *c.SignedAt

		_, err = c.Sign(Signer{Name: "Outra Pessoa", Document: "999"}, Origin{}, now.Add(time.Hour))
		assert.True(t, shared.IsInvalidState(err))
		assert.Equal(t, "Maria Souza", c.SignerName)
		assert.Equal(t, firstAt, *c.SignedAt)
	})

	t.Run("pending contract cannot be signed", func(t *testing.T) {
		c, err := NewContract(uuid.New(), uuid.New(), "standard", validFields(), now)
		require.NoError(t, err)
		_, err = c.Sign(signer(), Origin{}, now)
		assert.True(t, shared.IsInvalidState(err))
	})

	t.Run("signer must be identified", func(t *testing.T) {
		c := activeContract(t)
		_, err := c.Sign(Signer{Name: "Al"}, Origin{}, now)
		assert.True(t, shared.IsInvalidInput(err))
		assert.False(t, c.Signed)
	})
}

func TestContract_Fork(t *testing.T) {
	c := activeContract(t)
	_, err := c.Sign(signer(), Origin{}, now)
	require.NoError(t, err)

	f := validFields()
	f.Title = "Contrato revisado"
	next, err := c.Fork(f, now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, c.Status)
	require.NotNil(t, c.SupersededBy)
	assert.Equal(t, next.ID, *c.SupersededBy)
	assert.True(t, c.Signed, "old revision keeps its signature")

	assert.Equal(t, c.GroupID, next.GroupID)
	assert.Equal(t, 2, next.Revision)
	assert.Equal(t, "2.0", next.VersionLabel())
	assert.Equal(t, StatusActive, next.Status)
	assert.False(t, next.Signed)
	assert.Equal(t, "Contrato revisado", next.Fields.Title)
	assert.Equal(t, c.Fields.ValidFrom, next.Fields.ValidFrom)

	_, err = c.Fork(f, now)
	assert.True(t, shared.IsInvalidState(err), "expired revisions cannot be edited again")
}

func TestContract_Cancel(t *testing.T) {
	c := activeContract(t)
	assert.True(t, shared.IsInvalidInput(c.Cancel("", now)))
	assert.Equal(t, StatusActive, c.Status)

	require.NoError(t, c.Cancel("encerramento da unidade", now))
	assert.Equal(t, StatusCancelled, c.Status)
	assert.True(t, shared.IsInvalidState(c.Cancel("again", now)))
}

func TestStatusFor(t *testing.T) {
	c := activeContract(t)
	who := uuid.New()
	st := StatusFor(c, nil, who)
	assert.True(t, st.Pending)
	assert.Equal(t, 0, st.SignedRevision)

	history := []Signature{
		{SignerID: who, RevisionSigned: 1, Accepted: true, SignedAt: now},
		{SignerID: uuid.New(), RevisionSigned: 3, Accepted: true, SignedAt: now},
	}
	st = StatusFor(c, history, who)
	assert.False(t, st.Pending)
	assert.Equal(t, 1, st.SignedRevision)

	c.Revision = 2
	st = StatusFor(c, history, who)
	assert.True(t, st.Pending, "signed revision is older than the active one")
}

func TestDefaultFields(t *testing.T) {
	f := DefaultFields("rykon-pay", "Unidade <Centro>", now)
	assert.Equal(t, "CONTRATO DE PRESTAÇÃO DE SERVIÇOS - RYKON-PAY", f.Title)
	assert.Contains(t, f.Body, "Unidade &lt;Centro&gt;")
	assert.True(t, f.TransactionFeePercent.Equal(decimal.RequireFromString("2.5")))
	assert.NoError(t, f.Validate())

	unknown := DefaultFields("whatever", "U", now)
	assert.Equal(t, TemplateFor(DefaultType).Title, unknown.Title)
}
