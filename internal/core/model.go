package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item. Only products with IsInventoryItem take part in
// stock tracking; the others (services) are always considered available.
type Product struct {
	ID              int64           `json:"id"`
	OrganizationID  int64           `json:"organization_id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	IsInventoryItem bool            `json:"is_inventory_item"`
	IsActive        bool            `json:"is_active"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Warehouse is a physical or logical storage facility.
type Warehouse struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Coordinates    *GeoPoint `json:"coordinates,omitempty"`
	// HandlingCost is added per unit to the stock cost to give the landed cost.
	HandlingCost decimal.Decimal `json:"handling_cost"`
	IsActive     bool            `json:"is_active"`
}

// Location is a bin or sub-area of a warehouse.
type Location struct {
	ID          int64  `json:"id"`
	WarehouseID int64  `json:"warehouse_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
}

// Batch is a lot and/or serial identity of a product.
type Batch struct {
	ID              int64      `json:"id"`
	OrganizationID  int64      `json:"organization_id"`
	ProductID       int64      `json:"product_id"`
	BatchNumber     string     `json:"batch_number"`
	SerialNumber    string     `json:"serial_number,omitempty"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
}
