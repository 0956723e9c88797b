package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is the closed set of accepted payment methods.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPIX        PaymentMethod = "pix"
)

// PaymentMethods lists every accepted method in display order.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPIX}

// paymentAliases maps the labels used by the storefront UI to canonical codes.
var paymentAliases = map[string]PaymentMethod{
	"cash":              PaymentCash,
	"dinheiro":          PaymentCash,
	"credit_card":       PaymentCreditCard,
	"creditcard":        PaymentCreditCard,
	"cartão de crédito": PaymentCreditCard,
	"cartao de credito": PaymentCreditCard,
	"debit_card":        PaymentDebitCard,
	"debitcard":         PaymentDebitCard,
	"cartão de débito":  PaymentDebitCard,
	"cartao de debito":  PaymentDebitCard,
	"pix":               PaymentPIX,
}

// ParsePaymentMethod resolves a code or UI label, case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m, ok := paymentAliases[strings.ToLower(strings.TrimSpace(s))]
	return m, ok
}

// Label returns the human readable name printed on receipts.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Dinheiro"
	case PaymentCreditCard:
		return "Cartão de Crédito"
	case PaymentDebitCard:
		return "Cartão de Débito"
	case PaymentPIX:
		return "PIX"
	default:
		return string(m)
	}
}

// Sale is an immutable record of a finalized cart. Totals are derived from
// Items and are never set independently.
type Sale struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BuyerRef      *string         `gorm:"type:varchar(120)"`
	BuyerEmail    *string         `gorm:"type:varchar(254)"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(20);not null"`
	TotalQuantity int             `gorm:"not null"`
	TotalValue    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	// TotalCost is Σ quantity × cost price at sale time, kept for profit reports.
	TotalCost decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt time.Time       `gorm:"index"`

	Items []SaleItem `gorm:"foreignKey:SaleID"`
}

// SaleItem is a point-in-time snapshot of one cart line. ItemID is a
// non-owning reference: the item may since have been edited or deleted.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position  int             `gorm:"not null"`
	ItemID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemName  string          `gorm:"not null"`
	Supplier  string          `gorm:"not null"`
	Quantity  int             `gorm:"not null"`
	CostPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SalePrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LineTotal decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}
