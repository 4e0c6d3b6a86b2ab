package models

import (
	"time"

	"github.com/fatflowers/paysync/pkg/types"
)

// User holds the billing projection of an account. The users table is owned by
// the account service; only SubscriptionStatus is written here.
type User struct {
	ID                 string                   `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	SubscriptionStatus types.SubscriptionStatus `gorm:"column:subscription_status;type:varchar(32)" json:"subscription_status"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

func (User) TableName() string { return "users" }
