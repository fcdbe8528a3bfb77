package model

type Customer struct {
	DTO
	Email         string `gorm:"size:255;uniqueIndex" json:"email"`
	FullName      string `gorm:"size:255" json:"fullName"`
	LoyaltyPoints int64  `gorm:"not null;default:0" json:"loyaltyPoints"`
}

type Product struct {
	DTO
	Name   string `gorm:"size:255;not null" json:"name"`
	Price  int64  `gorm:"not null" json:"price"`
	Active bool   `gorm:"not null;default:true" json:"active"`
}
