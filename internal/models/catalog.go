package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is the catalog entry a learner pays for. Owned by the catalog service;
// this service only reads it.
type Course struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Price     float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	Thumbnail string    `gorm:"type:text" json:"thumbnail,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Course
func (Course) TableName() string {
	return "courses"
}

// User is the subset of the account record this service needs
type User struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name    string    `gorm:"type:varchar(255)" json:"name"`
	Email   string    `gorm:"type:varchar(255);index" json:"email"`
	IsAdmin bool      `gorm:"default:false" json:"is_admin"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// Coupon is a percentage discount code. Codes are stored uppercase.
type Coupon struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code            string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	DiscountPercent float64    `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percent"`
	Active          bool       `gorm:"default:true" json:"active"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidTo         *time.Time `json:"valid_to,omitempty"`
	UsageLimit      *int       `json:"usage_limit,omitempty"` // informational, not enforced
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}

// IsActiveAt reports whether the coupon can be applied at the given instant.
// Both window bounds are inclusive.
func (c *Coupon) IsActiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return false
	}
	return true
}
