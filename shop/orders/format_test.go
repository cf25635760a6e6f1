package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/shopbot/shop/domain"
)

func TestSummary(t *testing.T) {
	o := domain.Order{
		ID:       "00000000000000aa",
		Currency: "EUR",
		Total:    29600,
		Status:   domain.StatusUnpaid,
		Lines: []domain.OrderLine{
			{ProductName: "Saffron", Size: "10g", Price: 8000},
			{ProductName: "Saffron", Size: "30g", Price: 21600},
		},
	}
	assert.Equal(t, "Order 00000000000000aa (awaiting payment)\n• Saffron 10g: 80.00€\n• Saffron 30g: 216.00€\n💰 Total: 296.00€", Summary(o))

	o.Status = domain.StatusPaid
	o.Method = domain.MethodStripe
	assert.Equal(t, "paid, shipping details needed", StatusLabel(o))
	o.Shipping = &domain.Shipping{Text: "Via Roma 1"}
	assert.Equal(t, "paid, contact email needed", StatusLabel(o))
	now := time.Now()
	o.ReceiptSentAt = &now
	o.ContactEmail = "a@example.com"
	assert.Equal(t, "completed", StatusLabel(o))
	assert.Contains(t, Summary(o), "\nMethod: stripe\nShipping: Via Roma 1\nEmail: a@example.com")
}
