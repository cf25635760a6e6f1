// Package cart keeps each conversation's ordered list of selected items.
package cart

import (
	"context"
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/money"
	"github.com/m3rciful/shopbot/shop/storage"
)

// Line is a cart item with its resolved name and price.
type Line struct {
	domain.CartItem
	ProductName string
	Price       money.Cents
	Discount    int
}

// Store is the cart service.
type Store struct {
	sessions storage.SessionStore
	catalog  *catalog.Catalog
}

// New builds a cart store on top of a session store.
func New(sessions storage.SessionStore, cat *catalog.Catalog) *Store {
	return &Store{sessions: sessions, catalog: cat}
}

// Catalog exposes the catalog used for pricing.
func (s *Store) Catalog() *catalog.Catalog { return s.catalog }

// AddItem validates (product, size) and appends it to the cart.
func (s *Store) AddItem(ctx context.Context, conv domain.ConversationID, product, size string) error {
	if _, err := s.catalog.PriceOf(product, size); err != nil {
		return domain.ValidationWrap("item", err)
	}
	sess, err := s.sessions.Mutate(ctx, conv, func(sess *domain.Session) error {
		sess.Cart = append(sess.Cart, domain.CartItem{ProductID: product, Size: size})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Debug(ctx, logger.CompCart, "cart.add",
		slog.String("product", product),
		slog.String("size", size),
		slog.Int("items", len(sess.Cart)),
	)
	return nil
}

// Items returns the cart in insertion order; unknown conversations have an empty cart.
func (s *Store) Items(ctx context.Context, conv domain.ConversationID) ([]domain.CartItem, error) {
	sess, err := s.sessions.Get(ctx, conv)
	if err != nil {
		return nil, err
	}
	if sess.Cart == nil {
		return []domain.CartItem{}, nil
	}
	return sess.Cart, nil
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context, conv domain.ConversationID) error {
	_, err := s.sessions.Mutate(ctx, conv, func(sess *domain.Session) error {
		sess.Cart = nil
		return nil
	})
	return err
}

// Total sums the catalog price of every item; an empty cart totals zero.
func (s *Store) Total(ctx context.Context, conv domain.ConversationID) (money.Cents, error) {
	lines, err := s.Lines(ctx, conv)
	if err != nil {
		return 0, err
	}
	return SumLines(lines), nil
}

// Lines prices every cart item.
func (s *Store) Lines(ctx context.Context, conv domain.ConversationID) ([]Line, error) {
	items, err := s.Items(ctx, conv)
	if err != nil {
		return nil, err
	}
	return s.Price(items)
}

// Price resolves items against the catalog.
func (s *Store) Price(items []domain.CartItem) ([]Line, error) {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		p, err := s.catalog.Product(it.ProductID)
		if err != nil {
			return nil, err
		}
		size, ok := p.Size(it.Size)
		if !ok {
			return nil, domain.NotFound("size", it.ProductID+" "+it.Size)
		}
		lines = append(lines, Line{CartItem: it, ProductName: p.Name, Price: size.Price, Discount: size.Discount})
	}
	return lines, nil
}

// SumLines totals priced lines.
func SumLines(lines []Line) money.Cents {
	var total money.Cents
	for _, l := range lines {
		total += l.Price
	}
	return total
}
