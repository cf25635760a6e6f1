package notify

import (
	"context"
	"sync"

	"github.com/m3rciful/shopbot/shop/domain"
)

// Recorder is an observer that remembers what it was told.
type Recorder struct {
	mu       sync.Mutex
	paid     []domain.Order
	receipts []domain.Order
}

func (r *Recorder) OrderPaid(_ context.Context, o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paid = append(r.paid, o.Clone())
}

func (r *Recorder) ReceiptReady(_ context.Context, o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, o.Clone())
}

// Paid returns the paid notifications in arrival order.
func (r *Recorder) Paid() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Order(nil), r.paid...)
}

// Receipts returns the receipt notifications in arrival order.
func (r *Recorder) Receipts() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Order(nil), r.receipts...)
}

// PaidCount counts paid notifications for one order.
func (r *Recorder) PaidCount(orderID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.paid {
		if o.ID == orderID {
			n++
		}
	}
	return n
}
