package entity

import "github.com/shopspring/decimal"

// Registros de enriquecimiento obtenidos de servicios pares. Son de corta vida
// y nunca se persisten como estado autoritativo.

// ProductRef datos de producto expuestos por el servicio de inventario.
type ProductRef struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CustomerRef datos de cliente expuestos por el servicio de usuarios.
type CustomerRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// StaffRef datos de empleado expuestos por el servicio de usuarios.
type StaffRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Etiquetas para ids que el servicio remoto no resolvió.
const (
	UnknownProductName  = "Unknown product"
	UnknownCustomerName = "Unknown customer"
	UnknownStaffName    = "Unknown staff"
)
