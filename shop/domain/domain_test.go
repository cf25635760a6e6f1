package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("checkout: %w", Provider("stripe", cause))

	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, cause)

	var coded *Error
	assert.True(t, errors.As(err, &coded))
	assert.Equal(t, "PROVIDER_ERROR", coded.Code())

	v := ValidationWrap("size", NotFound("size", "2g"))
	assert.ErrorIs(t, v, ErrValidation)
	assert.ErrorIs(t, v, ErrNotFound)
	assert.ErrorIs(t, Signature("paypal", nil), ErrInvalidSignature)
	assert.ErrorIs(t, MissingConfig("STRIPE_SECRET_KEY"), ErrConfigurationMissing)
}

func TestOrderCloneIsDeep(t *testing.T) {
	now := time.Now()
	o := Order{
		Lines:         []OrderLine{{ProductID: "saffron", Size: "10g", Price: 8000}},
		Shipping:      &Shipping{Text: "Via Roma 1"},
		ReceiptSentAt: &now,
	}
	c := o.Clone()
	c.Lines[0].Size = "30g"
	c.Shipping.Text = "changed"

	assert.Equal(t, "10g", o.Lines[0].Size)
	assert.Equal(t, "Via Roma 1", o.Shipping.Text)
}

func TestSessionResetKeepsCartAndOrders(t *testing.T) {
	s := NewSession(7)
	s.Stage = StageAwaitingShipping
	s.Cart = []CartItem{{ProductID: "saffron", Size: "1g"}}
	s.ActiveOrderID = "abc"
	s.PendingOrderID = "pending"
	s.OrderIDs = []string{"abc"}
	s.ProofRequested = true

	s.ResetTransient()
	assert.Equal(t, StageIdle, s.Stage)
	assert.Empty(t, s.ActiveOrderID)
	assert.Equal(t, "pending", s.PendingOrderID)
	assert.False(t, s.ProofRequested)
	assert.Len(t, s.Cart, 1)
	assert.Equal(t, []string{"abc"}, s.OrderIDs)
}

func TestRemoveOrderedKeepsLaterItems(t *testing.T) {
	s := Session{Cart: []CartItem{
		{ProductID: "saffron", Size: "10g"},
		{ProductID: "saffron", Size: "10g"},
		{ProductID: "saffron", Size: "20g"},
		{ProductID: "cbd", Size: "10ml"},
	}}
	s.RemoveOrdered([]OrderLine{
		{ProductID: "saffron", Size: "10g"},
		{ProductID: "cbd", Size: "10ml"},
		{ProductID: "cbd", Size: "30ml"},
	})
	assert.Equal(t, []CartItem{
		{ProductID: "saffron", Size: "10g"},
		{ProductID: "saffron", Size: "20g"},
	}, s.Cart)
}

func TestParseMethod(t *testing.T) {
	m, ok := ParseMethod("stripe")
	assert.True(t, ok)
	assert.Equal(t, MethodStripe, m)
	_, ok = ParseMethod("none")
	assert.False(t, ok)
}
