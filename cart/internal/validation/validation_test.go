package validation

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
)

func item(productID string, quantity int, cust *response.Customizations) response.CartItem {
	return response.CartItem{
		ID:             "item-" + productID,
		ProductID:      productID,
		ProductSlug:    productID,
		ProductName:    "Product " + productID,
		BasePrice:      decimal.RequireFromString("12.50"),
		Customizations: cust,
		Quantity:       quantity,
		AddedAt:        time.Now(),
	}
}

func distinctCart(n int) response.Cart {
	cart := response.Cart{}
	for i := range n {
		cart.Items = append(cart.Items, item(fmt.Sprintf("p%d", i), 1, &response.Customizations{}))
	}
	return cart
}

func TestValidateQuantity(t *testing.T) {
	testCases := []struct {
		name     string
		quantity int
		expected error
	}{
		{name: "zero is too low", quantity: 0, expected: inErrors.ErrQuantityTooLow},
		{name: "negative is too low", quantity: -3, expected: inErrors.ErrQuantityTooLow},
		{name: "one is allowed", quantity: 1},
		{name: "ten is allowed", quantity: 10},
		{name: "eleven is too high", quantity: 11, expected: inErrors.ErrQuantityTooHigh},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuantity(tc.quantity)
			if tc.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestGetTotalQuantity(t *testing.T) {
	assert.Equal(t, 0, GetTotalQuantity(response.Cart{}))
	cart := response.Cart{Items: []response.CartItem{item("a", 3, nil), item("b", 4, nil)}}
	assert.Equal(t, 7, GetTotalQuantity(cart))
}

func TestCanAddToCart(t *testing.T) {
	testCases := []struct {
		name     string
		cart     response.Cart
		quantity int
		expected error
	}{
		{name: "empty cart accepts ten", cart: response.Cart{}, quantity: 10},
		{name: "nine distinct accept a tenth", cart: distinctCart(9), quantity: 1},
		{name: "nine distinct reject two more", cart: distinctCart(9), quantity: 2, expected: inErrors.ErrCartFull},
		{
			name:     "ten distinct reject another",
			cart:     distinctCart(10),
			quantity: 0,
			expected: inErrors.ErrTooManyUniqueItems,
		},
		{name: "ten distinct reject an eleventh", cart: distinctCart(10), quantity: 1, expected: inErrors.ErrTooManyUniqueItems},
		{
			name:     "single full line rejects a new product",
			cart:     response.Cart{Items: []response.CartItem{item("a", 10, nil)}},
			quantity: 1,
			expected: inErrors.ErrCartFull,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CanAddToCart(tc.cart, tc.quantity)
			if tc.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestCanMergeIntoCart(t *testing.T) {
	cart := response.Cart{Items: []response.CartItem{item("a", 8, nil)}}
	assert.NoError(t, CanMergeIntoCart(cart, 2))
	assert.ErrorIs(t, CanMergeIntoCart(cart, 3), inErrors.ErrCartFull)
	assert.NoError(t, CanMergeIntoCart(distinctCart(10), 0))
}

func TestFindDuplicateItem(t *testing.T) {
	cart := response.Cart{Items: []response.CartItem{
		item("a", 1, &response.Customizations{Text: "hi", ColorID: "red"}),
		item("a", 1, nil),
		item("b", 1, &response.Customizations{Text: "hi", ColorID: "red"}),
	}}

	t.Run("given same product and customizations should find it", func(t *testing.T) {
		i, ok := FindDuplicateItem(cart, "a", &response.Customizations{ColorID: "red", Text: "hi"})
		require.True(t, ok)
		assert.Equal(t, 0, i)
	})

	t.Run("given nil customizations should match empty ones", func(t *testing.T) {
		i, ok := FindDuplicateItem(cart, "a", &response.Customizations{})
		require.True(t, ok)
		assert.Equal(t, 1, i)
	})

	t.Run("given different customizations should not match", func(t *testing.T) {
		_, ok := FindDuplicateItem(cart, "b", &response.Customizations{Text: "hi"})
		assert.False(t, ok)
	})

	t.Run("given unknown product should not match", func(t *testing.T) {
		_, ok := FindDuplicateItem(cart, "z", nil)
		assert.False(t, ok)
	})
}

func TestFindCartItem(t *testing.T) {
	cart := response.Cart{Items: []response.CartItem{item("a", 1, nil), item("b", 1, nil)}}
	i, ok := FindCartItem(cart, "item-b")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = FindCartItem(cart, "missing")
	assert.False(t, ok)
}

func TestValidateCartItem(t *testing.T) {
	t.Run("given valid item should return no errors", func(t *testing.T) {
		assert.Empty(t, ValidateCartItem(item("a", 2, nil)))
	})

	t.Run("given broken item should report every problem", func(t *testing.T) {
		broken := response.CartItem{BasePrice: decimal.NewFromInt(-1), Quantity: 11}
		errs := ValidateCartItem(broken)
		codes := make([]inErrors.ValidationCode, 0, len(errs))
		for _, err := range errs {
			codes = append(codes, err.Code)
		}
		assert.ElementsMatch(t, []inErrors.ValidationCode{
			inErrors.CodeMissingProductID,
			inErrors.CodeMissingProductName,
			inErrors.CodeInvalidPrice,
			inErrors.CodeQuantityTooHigh,
		}, codes)
	})
}

func TestValidateCart(t *testing.T) {
	t.Run("given empty cart should be valid", func(t *testing.T) {
		assert.Empty(t, ValidateCart(response.Cart{}))
	})

	t.Run("given total over the ceiling and a bad item should report both", func(t *testing.T) {
		bad := item("b", 0, nil)
		cart := response.Cart{Items: []response.CartItem{item("a", 10, nil), bad, item("c", 5, nil)}}
		errs := ValidateCart(cart)
		require.Len(t, errs, 2)
		assert.ErrorIs(t, errs[0], inErrors.ErrCartTotalExceeded)
		assert.ErrorIs(t, errs[1], inErrors.ErrQuantityTooLow)
		assert.Equal(t, "Item 2: Quantity must be at least 1", errs[1].Message)
	})
}
