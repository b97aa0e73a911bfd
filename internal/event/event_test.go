package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrderEnvelope() Envelope {
	return Envelope{
		Type: OrderCreated,
		Data: Data{
			Email:        "a@b.com",
			OrderID:      "o1",
			Shipping:     Shipping{Type: "ECONOMIC", Carrier: "CORREIOS"},
			Billing:      Billing{Payment: "CASH", Total: 10},
			ProductCodes: []string{"P1"},
			RequestID:    "r1",
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid order event", func(t *testing.T) {
		require.NoError(t, validOrderEnvelope().Validate())
	})

	t.Run("valid product event", func(t *testing.T) {
		env := Envelope{
			Type: ProductDeleted,
			Data: Data{ProductID: "p1", ProductCode: "CODE-1", RequestID: "r1"},
		}
		require.NoError(t, env.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		env := validOrderEnvelope()
		env.Type = "ORDER_EXPLODED"
		var malformed *MalformedEventError
		require.ErrorAs(t, env.Validate(), &malformed)
		assert.Equal(t, "eventType", malformed.Field)
	})

	t.Run("order event without billing", func(t *testing.T) {
		env := validOrderEnvelope()
		env.Data.Billing = Billing{}
		var malformed *MalformedEventError
		require.ErrorAs(t, env.Validate(), &malformed)
		assert.Equal(t, "billing", malformed.Field)
	})

	t.Run("product event without code", func(t *testing.T) {
		env := Envelope{
			Type: ProductCreated,
			Data: Data{ProductID: "p1", RequestID: "r1"},
		}
		var malformed *MalformedEventError
		require.ErrorAs(t, env.Validate(), &malformed)
		assert.Equal(t, "productCode", malformed.Field)
	})

	t.Run("missing request id", func(t *testing.T) {
		env := validOrderEnvelope()
		env.Data.RequestID = ""
		require.Error(t, env.Validate())
	})
}

func TestSubjectIdentity(t *testing.T) {
	order := validOrderEnvelope()
	assert.Equal(t, "o1", order.SubjectID())
	assert.Equal(t, KindOrder, order.EntityKind())

	product := Envelope{
		Type: ProductUpdated,
		Data: Data{ProductID: "p1", ProductCode: "CODE-1", RequestID: "r1"},
	}
	assert.Equal(t, "CODE-1", product.SubjectID())
	assert.Equal(t, KindProduct, product.EntityKind())
}

func TestDecodeRoundTrip(t *testing.T) {
	env := validOrderEnvelope()
	body, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"eventType":"ORDER_CREATED","data":{"email":"a@b.com"}}`))
	require.Error(t, err)

	_, err = Decode([]byte("not json"))
	require.Error(t, err)
}
