// Package memory implements the stores in process memory. Contents are lost
// on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/shopbot/shop/domain"
)

// Sessions is a mutex-guarded session map.
type Sessions struct {
	mu    sync.Mutex
	items map[domain.ConversationID]domain.Session
	now   func() time.Time
}

// NewSessions returns an empty session store.
func NewSessions() *Sessions {
	return &Sessions{items: make(map[domain.ConversationID]domain.Session), now: time.Now}
}

func (s *Sessions) Get(_ context.Context, id domain.ConversationID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.items[id]; ok {
		return sess.Clone(), nil
	}
	return domain.NewSession(id), nil
}

func (s *Sessions) Mutate(_ context.Context, id domain.ConversationID, fn func(*domain.Session) error) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if ok {
		sess = sess.Clone()
	} else {
		sess = domain.NewSession(id)
	}
	if err := fn(&sess); err != nil {
		return domain.Session{}, err
	}
	sess.ConversationID = id
	sess.UpdatedAt = s.now()
	s.items[id] = sess.Clone()
	return sess, nil
}

// Len returns the number of stored sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Orders is a mutex-guarded order map.
type Orders struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrders returns an empty order store.
func NewOrders() *Orders {
	return &Orders{items: make(map[string]domain.Order)}
}

func (o *Orders) Insert(_ context.Context, order domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.items[order.ID]; exists {
		return fmt.Errorf("memory: order %s already exists", order.ID)
	}
	o.items[order.ID] = order.Clone()
	return nil
}

func (o *Orders) Get(_ context.Context, id string) (domain.Order, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	order, ok := o.items[id]
	if !ok {
		return domain.Order{}, domain.NotFound("order", id)
	}
	return order.Clone(), nil
}

func (o *Orders) Mutate(_ context.Context, id string, fn func(*domain.Order) error) (domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.items[id]
	if !ok {
		return domain.Order{}, domain.NotFound("order", id)
	}
	order = order.Clone()
	if err := fn(&order); err != nil {
		return domain.Order{}, err
	}
	order.ID = id
	o.items[id] = order.Clone()
	return order, nil
}

func (o *Orders) ListByConversation(_ context.Context, conv domain.ConversationID) ([]domain.Order, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []domain.Order
	for _, order := range o.items {
		if order.ConversationID == conv {
			out = append(out, order.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (o *Orders) FindByProviderRef(_ context.Context, ref string) (domain.Order, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if ref != "" {
		for _, order := range o.items {
			if order.ProviderRef == ref {
				return order.Clone(), nil
			}
		}
	}
	return domain.Order{}, domain.NotFound("order with provider ref", ref)
}
