package types

import "time"

// Business is a listed SME in the directory.
type Business struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name" example:"Padaria Central"`
	Slug        string     `json:"slug" example:"padaria-central"`
	Description *string    `json:"description,omitempty"`
	CategoryID  string     `json:"category_id"`
	RegionID    string     `json:"region_id"`
	Address     *string    `json:"address,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Website     *string    `json:"website,omitempty"`
	IsVerified  bool       `json:"is_verified"`
	IsActive    bool       `json:"is_active"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Region is an administrative area businesses are mapped to.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name" example:"Viseu"`
	Slug string `json:"slug" example:"viseu"`
}

// Category classifies a business (restaurant, retail, services...).
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name" example:"Restaurants"`
	Slug string `json:"slug" example:"restaurants"`
}
