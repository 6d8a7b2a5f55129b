// Package validation holds the pure cart checks. None of them touch the
// store or storage, so callers compose them before committing a change.
package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Alturino/makelocal/cart/pkg/response"
	commonValidate "github.com/Alturino/makelocal/internal/common/validate"
	inErrors "github.com/Alturino/makelocal/internal/errors"
)

const (
	MinQuantity    = 1
	MaxQuantity    = 10
	MaxTotalItems  = 10
	MaxUniqueItems = 10
)

var validate = commonValidate.New()

func ValidateQuantity(quantity int) error {
	if quantity < MinQuantity {
		return inErrors.NewValidationError(
			inErrors.CodeQuantityTooLow, "quantity",
			"Quantity must be at least %d", MinQuantity,
		)
	}
	if quantity > MaxQuantity {
		return inErrors.NewValidationError(
			inErrors.CodeQuantityTooHigh, "quantity",
			"Quantity cannot exceed %d per item", MaxQuantity,
		)
	}
	return nil
}

func GetTotalQuantity(cart response.Cart) int {
	total := 0
	for _, item := range cart.Items {
		total += item.Quantity
	}
	return total
}

// CanAddToCart checks both cart ceilings for a new line of quantityToAdd.
// The distinct product ceiling is reported first.
func CanAddToCart(cart response.Cart, quantityToAdd int) error {
	if len(cart.Items) >= MaxUniqueItems {
		return inErrors.NewValidationError(
			inErrors.CodeTooManyUniqueItems, "",
			"Cannot add more distinct products. Maximum %d unique items allowed", MaxUniqueItems,
		)
	}
	return CanMergeIntoCart(cart, quantityToAdd)
}

// CanMergeIntoCart checks only the total quantity ceiling, for additions that
// land on an existing line.
func CanMergeIntoCart(cart response.Cart, quantityToAdd int) error {
	if GetTotalQuantity(cart)+quantityToAdd > MaxTotalItems {
		return inErrors.NewValidationError(
			inErrors.CodeCartFull, "",
			"Cannot add item. Cart limit is %d items total", MaxTotalItems,
		)
	}
	return nil
}

// FindCartItem returns the index of the item with itemID.
func FindCartItem(cart response.Cart, itemID string) (int, bool) {
	for i, item := range cart.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return -1, false
}

// FindDuplicateItem returns the index of the first line for productID whose
// customizations equal customizations.
func FindDuplicateItem(
	cart response.Cart,
	productID string,
	customizations *response.Customizations,
) (int, bool) {
	for i, item := range cart.Items {
		if item.ProductID == productID && item.Customizations.Equal(customizations) {
			return i, true
		}
	}
	return -1, false
}

func ValidateCartItem(item response.CartItem) []*inErrors.ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(validate.Struct(item), &fieldErrs) {
		return nil
	}
	errs := make([]*inErrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fieldError(item, fe))
	}
	return errs
}

func fieldError(item response.CartItem, fe validator.FieldError) *inErrors.ValidationError {
	switch fe.Field() {
	case "productId":
		return inErrors.NewValidationError(inErrors.CodeMissingProductID, "productId", "Product ID is required")
	case "productName":
		return inErrors.NewValidationError(inErrors.CodeMissingProductName, "productName", "Product name is required")
	case "basePrice":
		return inErrors.NewValidationError(inErrors.CodeInvalidPrice, "basePrice", "Valid price is required")
	case "quantity":
		var verr *inErrors.ValidationError
		if errors.As(ValidateQuantity(item.Quantity), &verr) {
			return verr
		}
	}
	return inErrors.NewValidationError(
		inErrors.ValidationCode(fmt.Sprintf("INVALID_%s", fe.Tag())), fe.Field(),
		"%s failed on %s", fe.Field(), fe.Tag(),
	)
}

// ValidateCart checks the whole cart. Item errors carry an "Item N: " prefix.
func ValidateCart(cart response.Cart) []*inErrors.ValidationError {
	var errs []*inErrors.ValidationError
	if total := GetTotalQuantity(cart); total > MaxTotalItems {
		errs = append(errs, inErrors.NewValidationError(
			inErrors.CodeCartTotalExceeded, "",
			"Cart total exceeds %d items", MaxTotalItems,
		))
	}
	for i, item := range cart.Items {
		for _, err := range ValidateCartItem(item) {
			err.Message = fmt.Sprintf("Item %d: %s", i+1, err.Message)
			errs = append(errs, err)
		}
	}
	return errs
}
