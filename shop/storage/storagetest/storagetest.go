// Package storagetest is a conformance suite shared by every store backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"
)

// RunSessionStore exercises a SessionStore created fresh for every subtest.
func RunSessionStore(t *testing.T, newStore func(t *testing.T) storage.SessionStore) {
	ctx := context.Background()

	t.Run("unknown conversation is idle", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Get(ctx, 404)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationID(404), sess.ConversationID)
		assert.Equal(t, domain.StageIdle, sess.Stage)
		assert.Empty(t, sess.Cart)
	})

	t.Run("mutate persists", func(t *testing.T) {
		s := newStore(t)
		out, err := s.Mutate(ctx, 1, func(sess *domain.Session) error {
			sess.Stage = domain.StageBrowsing
			sess.Cart = append(sess.Cart, domain.CartItem{ProductID: "saffron", Size: "10g"})
			sess.OrderIDs = append(sess.OrderIDs, "a1")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StageBrowsing, out.Stage)

		got, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.StageBrowsing, got.Stage)
		assert.Equal(t, []domain.CartItem{{ProductID: "saffron", Size: "10g"}}, got.Cart)
		assert.Equal(t, []string{"a1"}, got.OrderIDs)
		assert.False(t, got.UpdatedAt.IsZero())

		got.Cart[0].Size = "1g"
		again, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "10g", again.Cart[0].Size)
	})

	t.Run("failed mutation writes nothing", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")
		_, err := s.Mutate(ctx, 2, func(sess *domain.Session) error {
			sess.Stage = domain.StageCartReview
			return boom
		})
		require.ErrorIs(t, err, boom)
		got, err := s.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, domain.StageIdle, got.Stage)
	})

	t.Run("concurrent mutations do not lose updates", func(t *testing.T) {
		s := newStore(t)
		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Mutate(ctx, 3, func(sess *domain.Session) error {
					sess.Cart = append(sess.Cart, domain.CartItem{ProductID: "saffron", Size: fmt.Sprint(i)})
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		got, err := s.Get(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, got.Cart, n)
	})
}

// NewOrder builds a valid unpaid order for conv.
func NewOrder(id string, conv domain.ConversationID, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:             id,
		ConversationID: conv,
		Lines: []domain.OrderLine{
			{ProductID: "saffron", ProductName: "Saffron", Size: "10g", Price: 8000},
			{ProductID: "saffron", ProductName: "Saffron", Size: "30g", Price: 21600},
		},
		Total:     29600,
		Currency:  "EUR",
		CreatedAt: createdAt,
		Status:    domain.StatusUnpaid,
		Method:    domain.MethodNone,
	}
}

// RunOrderStore exercises an OrderStore created fresh for every subtest.
func RunOrderStore(t *testing.T, newStore func(t *testing.T) storage.OrderStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown order", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Mutate(ctx, "missing", func(*domain.Order) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.FindByProviderRef(ctx, "cs_missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		order := NewOrder("0123456789abcdef", 10, base)
		require.NoError(t, s.Insert(ctx, order))
		require.Error(t, s.Insert(ctx, order))

		got, err := s.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		assert.Equal(t, order.ConversationID, got.ConversationID)
		assert.Equal(t, order.Lines, got.Lines)
		assert.Equal(t, order.Total, got.Total)
		assert.True(t, order.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, domain.StatusUnpaid, got.Status)
	})

	t.Run("mutate and lookups", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewOrder("b", 20, base.Add(time.Minute))))
		require.NoError(t, s.Insert(ctx, NewOrder("a", 20, base)))
		require.NoError(t, s.Insert(ctx, NewOrder("c", 21, base)))

		paidAt := base.Add(time.Hour)
		out, err := s.Mutate(ctx, "b", func(o *domain.Order) error {
			o.Status = domain.StatusPaid
			o.Method = domain.MethodStripe
			o.ProviderRef = "cs_test_1"
			o.Confirmation = &domain.Confirmation{ProviderRef: "cs_test_1", ConfirmedAt: paidAt}
			return nil
		})
		require.NoError(t, err)
		assert.True(t, out.Paid())

		boom := errors.New("boom")
		_, err = s.Mutate(ctx, "b", func(o *domain.Order) error {
			o.Status = domain.StatusUnpaid
			return boom
		})
		require.ErrorIs(t, err, boom)

		found, err := s.FindByProviderRef(ctx, "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, "b", found.ID)
		assert.True(t, found.Paid())
		require.NotNil(t, found.Confirmation)
		assert.True(t, paidAt.Equal(found.Confirmation.ConfirmedAt))

		list, err := s.ListByConversation(ctx, 20)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ID)
		assert.Equal(t, "b", list[1].ID)

		none, err := s.ListByConversation(ctx, 99)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("concurrent mutations serialize", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewOrder("race", 30, base)))
		const n = 20
		var wg sync.WaitGroup
		var paid sync.Map
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Mutate(ctx, "race", func(o *domain.Order) error {
					if o.Paid() {
						return domain.ErrAlreadyPaid
					}
					o.Status = domain.StatusPaid
					return nil
				})
				if err == nil {
					paid.Store(i, true)
				} else {
					assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
				}
			}(i)
		}
		wg.Wait()
		winners := 0
		paid.Range(func(any, any) bool { winners++; return true })
		assert.Equal(t, 1, winners)
	})
}
