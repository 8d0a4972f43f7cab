package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/services/order/domain/models"
)

func TestValidateOrderForCreation(t *testing.T) {
	validCustomer := uuid.New()

	tests := []struct {
		name    string
		order   *models.Order
		wantErr bool
	}{
		{
			name:    "nil order",
			order:   nil,
			wantErr: true,
		},
		{
			name:    "missing customer id",
			order:   &models.Order{Items: []models.Line{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 100}}},
			wantErr: true,
		},
		{
			name:    "no line items",
			order:   &models.Order{CustomerID: validCustomer},
			wantErr: true,
		},
		{
			name: "empty sku",
			order: &models.Order{
				CustomerID: validCustomer,
				Items:      []models.Line{{SKU: "", Quantity: 1, UnitPriceCents: 100}},
			},
			wantErr: true,
		},
		{
			name: "non-positive quantity",
			order: &models.Order{
				CustomerID: validCustomer,
				Items:      []models.Line{{SKU: "SKU-1", Quantity: 0, UnitPriceCents: 100}},
			},
			wantErr: true,
		},
		{
			name: "negative unit price",
			order: &models.Order{
				CustomerID: validCustomer,
				Items:      []models.Line{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: -1}},
			},
			wantErr: true,
		},
		{
			name: "valid order",
			order: &models.Order{
				CustomerID: validCustomer,
				Items:      []models.Line{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 100}},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrderForCreation(tt.order)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
