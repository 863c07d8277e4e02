package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/inkwell-books/api/internal/repositories"
)

// PricingPolicy computes tax and shipping for an order subtotal. Amounts are
// minor currency units.
type PricingPolicy interface {
	Tax(subtotal int64) int64
	Shipping(subtotal int64) int64
}

// FlatRatePricing applies a fixed tax rate in basis points and a flat shipping
// fee waived above a threshold.
type FlatRatePricing struct {
	TaxRateBasisPoints    int64
	ShippingFee           int64
	FreeShippingThreshold int64
}

func (p FlatRatePricing) Tax(subtotal int64) int64 {
	if p.TaxRateBasisPoints <= 0 || subtotal <= 0 {
		return 0
	}
	return subtotal * p.TaxRateBasisPoints / 10000
}

func (p FlatRatePricing) Shipping(subtotal int64) int64 {
	if p.FreeShippingThreshold > 0 && subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

// orderAssembler turns a cart snapshot into order line items with catalog data
// denormalized at assembly time, so later catalog edits never rewrite history.
type orderAssembler struct {
	books   repositories.BookRepository
	pricing PricingPolicy
}

type assembledOrder struct {
	Items    []OrderLineItem
	Totals   OrderTotals
	Currency string
}

func (a *orderAssembler) assemble(ctx context.Context, cart Cart) (assembledOrder, error) {
	if len(cart.Items) == 0 {
		return assembledOrder{}, fmt.Errorf("%w: cart has no items", ErrOrderEmptyCart)
	}

	currency := strings.TrimSpace(cart.Currency)
	items := make([]OrderLineItem, 0, len(cart.Items))
	var subtotal int64

	for _, item := range cart.Items {
		bookID := strings.TrimSpace(item.BookID)
		if bookID == "" {
			return assembledOrder{}, fmt.Errorf("%w: cart item book id is empty", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return assembledOrder{}, fmt.Errorf("%w: quantity for book %s must be positive", ErrOrderInvalidInput, bookID)
		}
		if item.UnitPrice < 0 {
			return assembledOrder{}, fmt.Errorf("%w: unit price for book %s is negative", ErrOrderInvalidInput, bookID)
		}

		// The catalog read supplies the denormalized title, author, and ISBN
		// and verifies the title is still sellable. The charge itself uses the
		// cart snapshot price, so a catalog reprice between add-to-cart and
		// checkout never changes the total the user saw.
		book, err := a.books.FindByID(ctx, bookID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return assembledOrder{}, fmt.Errorf("%w: book %s no longer exists", ErrOrderInvalidInput, bookID)
			}
			return assembledOrder{}, err
		}
		if !book.Active {
			return assembledOrder{}, fmt.Errorf("%w: book %s is not available for sale", ErrOrderInvalidInput, bookID)
		}
		if bookCurrency := strings.TrimSpace(book.Currency); bookCurrency != "" && currency != "" && !strings.EqualFold(bookCurrency, currency) {
			return assembledOrder{}, fmt.Errorf("%w: book %s is priced in %s, cart is %s", ErrOrderInvalidInput, bookID, bookCurrency, currency)
		}

		line := OrderLineItem{
			BookID:    book.ID,
			ISBN:      book.ISBN,
			Title:     book.Title,
			Author:    book.Author,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.UnitPrice * int64(item.Quantity),
		}
		items = append(items, line)
		subtotal += line.Subtotal
	}

	tax := a.pricing.Tax(subtotal)
	shipping := a.pricing.Shipping(subtotal)

	return assembledOrder{
		Items:    items,
		Totals:   OrderTotals{Subtotal: subtotal, Tax: tax, Shipping: shipping, Total: subtotal + tax + shipping},
		Currency: currency,
	}, nil
}

func formatOrderNumber(date string, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", date, seq)
}
