package models

import "time"

// ProductFormat distinguishes group courses from private classes.
type ProductFormat string

const (
	ProductFormatGroup   ProductFormat = "group"
	ProductFormatPrivate ProductFormat = "private"
)

// ProductLocation distinguishes delivery modes.
type ProductLocation string

const (
	ProductLocationOnline   ProductLocation = "online"
	ProductLocationInPerson ProductLocation = "in_person"
)

// Valid reports whether the format is a supported value.
func (f ProductFormat) Valid() bool {
	return f == ProductFormatGroup || f == ProductFormatPrivate
}

// Valid reports whether the location is a supported value.
func (l ProductLocation) Valid() bool {
	return l == ProductLocationOnline || l == ProductLocationInPerson
}

// Product is a sellable course offering.
type Product struct {
	ID                 string          `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	Format             ProductFormat   `db:"format" json:"format"`
	Location           ProductLocation `db:"location" json:"location"`
	CheckoutURL        string          `db:"checkout_url" json:"checkout_url"`
	ContractTemplateID *string         `db:"contract_template_id" json:"contract_template_id,omitempty"`
	Active             bool            `db:"active" json:"active"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductFilter captures listing options for products.
type ProductFilter struct {
	Format   ProductFormat
	Location ProductLocation
	Active   *bool
	Page     int
	PageSize int
}
