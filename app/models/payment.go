package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is shared by payments and the payment state mirrored on enrollments.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

const (
	PaymentProviderStripe = "stripe"
	DefaultCurrency       = "usd"
)

// Payment is one attempt to buy a course. It is created pending by the intent
// issuer and mutated only by settlement. Payments are never deleted.
type Payment struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	UserID             uint              `gorm:"not null;index" json:"user_id"`
	CourseID           uint              `gorm:"not null;index" json:"course_id"`
	Course             *Course           `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Amount             decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency           string            `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status             PaymentStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod      string            `gorm:"type:varchar(20);not null;default:'stripe'" json:"payment_method"`
	TransactionID      string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"transaction_id"`
	ExternalIntentID   string            `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_intent_id"`
	ExternalCustomerID string            `gorm:"type:varchar(191)" json:"external_customer_id,omitempty"`
	ReceiptURL         string            `gorm:"type:varchar(500)" json:"receipt_url,omitempty"`
	FailureReason      string            `gorm:"type:text" json:"failure_reason,omitempty"`
	Metadata           datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	SettledAt          *time.Time        `gorm:"default:null" json:"settled_at,omitempty"`
	CreatedAt          time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
