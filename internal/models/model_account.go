package models

import (
	"time"
)

// Account is a subscriber of the platform. One row per external platform user.
type Account struct {
	ID string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	// ExternalUserID is the platform user id; unique across accounts.
	ExternalUserID    string  `gorm:"column:external_user_id;type:varchar(64);not null;uniqueIndex" json:"external_user_id"`
	ExternalCompanyID string  `gorm:"column:external_company_id;type:varchar(64);not null" json:"external_company_id"`
	ExternalMemberID  string  `gorm:"column:external_member_id;type:varchar(64)" json:"external_member_id"`
	Email             *string `gorm:"column:email;type:varchar(255);default:null" json:"email"`
	// PaymentMethodConnected flips to true once the processor confirms a
	// vaulted payment method (webhook driven, never set by BeginSetup itself).
	PaymentMethodConnected bool      `gorm:"column:payment_method_connected;not null;default:false" json:"payment_method_connected"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
