package models

// Currency фиатная валюта, допустимая в ордерах
type Currency struct {
	Code    string `gorm:"primaryKey;type:varchar(8)" json:"code"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Numeric int    `gorm:"not null" json:"numeric"`
	Enabled bool   `gorm:"not null;default:true" json:"enabled"`
}
