// Package services contains stateless domain services for the order
// bounded context. Domain services enforce business rules that operate
// purely on domain types and have zero external dependencies beyond
// stdlib and the domain layer.
package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/services/order/domain/models"
)

// ValidateOrderForCreation performs cross-field validation on a
// fully-constructed Order aggregate before it is persisted.
//
// Business rules:
//   - CustomerID must be set
//   - Items must be non-empty
//   - Every line must have a non-empty SKU, positive quantity, and
//     non-negative unit price
func ValidateOrderForCreation(order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order cannot be nil")
	}
	if order.CustomerID == uuid.Nil {
		return fmt.Errorf("customer_id must be set")
	}
	if len(order.Items) == 0 {
		return fmt.Errorf("order must have at least one line item")
	}
	for i, line := range order.Items {
		if line.SKU == "" {
			return fmt.Errorf("line %d: sku must not be empty", i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be positive", i)
		}
		if line.UnitPriceCents < 0 {
			return fmt.Errorf("line %d: unit_price_cents must not be negative", i)
		}
	}
	return nil
}
