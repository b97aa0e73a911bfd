package orders

type PaymentType string

const (
	PaymentCreditCard PaymentType = "CREDIT_CARD"
	PaymentDebitCard  PaymentType = "DEBIT_CARD"
	PaymentCash       PaymentType = "CASH"
)

type ShippingType string

const (
	ShippingUrgent   ShippingType = "URGENT"
	ShippingEconomic ShippingType = "ECONOMIC"
)

type Carrier string

const (
	CarrierCorreios Carrier = "CORREIOS"
	CarrierFedex    Carrier = "FEDEX"
)

type OrderProduct struct {
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

type Shipping struct {
	Type    ShippingType `json:"type"`
	Carrier Carrier      `json:"carrier"`
}

type Billing struct {
	Payment    PaymentType `json:"payment"`
	TotalPrice float64     `json:"totalPrice"`
}

// Order is keyed by (Email, ID); the customer email is the partition
// key, the generated order id the sort key. CreatedAt is unix millis.
type Order struct {
	Email     string         `json:"email"`
	ID        string         `json:"id"`
	CreatedAt int64          `json:"createdAt"`
	Shipping  Shipping       `json:"shipping"`
	Billing   Billing        `json:"billing"`
	Products  []OrderProduct `json:"products"`
}

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCreditCard, PaymentDebitCard, PaymentCash:
		return true
	}
	return false
}

func (s ShippingType) Valid() bool {
	return s == ShippingUrgent || s == ShippingEconomic
}

func (c Carrier) Valid() bool {
	return c == CarrierCorreios || c == CarrierFedex
}

// ProductCodes lists the order's product codes in order.
func (o Order) ProductCodes() []string {
	codes := make([]string, len(o.Products))
	for i, p := range o.Products {
		codes[i] = p.Code
	}
	return codes
}
