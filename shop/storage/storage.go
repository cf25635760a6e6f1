// Package storage defines the persistence contracts for sessions and orders.
//
// Every write goes through Mutate, which applies fn atomically for one key:
// concurrent Mutate calls on the same key never lose updates. An error from fn
// aborts the mutation and nothing is written.
package storage

import (
	"context"

	"github.com/m3rciful/shopbot/shop/domain"
)

// SessionStore keeps per-conversation sessions. Unknown conversations read as
// a fresh idle session.
type SessionStore interface {
	Get(ctx context.Context, id domain.ConversationID) (domain.Session, error)
	Mutate(ctx context.Context, id domain.ConversationID, fn func(*domain.Session) error) (domain.Session, error)
}

// OrderStore keeps orders by id. Get and Mutate return domain.ErrNotFound for
// unknown ids.
type OrderStore interface {
	Insert(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	Mutate(ctx context.Context, id string, fn func(*domain.Order) error) (domain.Order, error)
	// ListByConversation returns orders oldest first.
	ListByConversation(ctx context.Context, conv domain.ConversationID) ([]domain.Order, error)
	FindByProviderRef(ctx context.Context, ref string) (domain.Order, error)
}
