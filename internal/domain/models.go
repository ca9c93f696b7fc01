// Package domain defines the persistence models for the payment ledger:
// mini-app users and completed Stars transactions. These types are mapped
// with GORM and form the core data layer of the application.
package domain

import "time"

// User represents a Telegram identity observed through a verified mini-app
// launch or a /start command. Rows are replaced last-write-wins on every
// successful authentication, keyed by TelegramID; there is no deletion path.
//
// Fields:
//   - TelegramID: Telegram user id, primary key.
//   - LanguageCode: language code from the launch data, defaults to "en".
//   - Username / FirstName / LastName: optional profile fields as supplied.
//   - IsPremium: optional Telegram Premium flag.
//   - PhotoURL: optional avatar URL from the launch data.
//   - StartParam: optional deep-link parameter carried by the launch.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	TelegramID   int64     `json:"telegram_id"   gorm:"primaryKey;autoIncrement:false"`
	LanguageCode string    `json:"language_code" gorm:"type:varchar(16);not null;default:'en'"`
	Username     *string   `json:"username,omitempty"   gorm:"type:varchar(64)"`
	FirstName    *string   `json:"first_name,omitempty" gorm:"type:varchar(128)"`
	LastName     *string   `json:"last_name,omitempty"  gorm:"type:varchar(128)"`
	IsPremium    *bool     `json:"is_premium,omitempty"`
	PhotoURL     *string   `json:"photo_url,omitempty"   gorm:"type:text"`
	StartParam   *string   `json:"start_param,omitempty" gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Transaction is an append-only ledger row mirroring a payment-completed
// notification from the gateway. Rows are created exactly once per
// notification and never mutated or deleted; the gateway remains the source
// of truth for "money received", the ledger only backs status polling.
//
// UniqueID is the short correlation token embedded in the invoice payload
// when the invoice was issued. It is treated as a dedup key at the
// application layer (see repo.CreateTransaction) rather than by a schema
// constraint, so a replayed notification is refused without failing the
// webhook acknowledgement.
type Transaction struct {
	ID                     int64     `json:"id"           gorm:"primaryKey;autoIncrement"`
	TelegramID             int64     `json:"telegram_id"  gorm:"not null;index"`
	Currency               string    `json:"currency"     gorm:"type:varchar(8);not null"`
	TotalAmount            int64     `json:"total_amount" gorm:"not null"` // minor units
	InvoicePayload         string    `json:"invoice_payload" gorm:"type:varchar(255);not null"`
	GatewayChargeID        string    `json:"gateway_charge_id"  gorm:"type:varchar(255)"`
	ProviderChargeID       string    `json:"provider_charge_id" gorm:"type:varchar(255)"`
	SubscriptionExpiration *int64    `json:"subscription_expiration,omitempty"`
	IsRecurring            *bool     `json:"is_recurring,omitempty"`
	IsFirstRecurring       *bool     `json:"is_first_recurring,omitempty"`
	ShippingOptionID       *string   `json:"shipping_option_id,omitempty" gorm:"type:varchar(255)"`
	OrderInfo              *string   `json:"order_info,omitempty"         gorm:"type:text"`
	UniqueID               string    `json:"unique_id" gorm:"type:varchar(32);not null;index"`
	CreatedAt              time.Time `json:"created_at"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }
