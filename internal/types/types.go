package types

type OrderSide string

type OrderType string

type OrderStatus string

type SignalAction string

type RejectReason string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

const (
	SignalActionBuy  SignalAction = "BUY"
	SignalActionSell SignalAction = "SELL"
	SignalActionHold SignalAction = "HOLD"
)

const (
	RejectReasonNone                  RejectReason = ""
	RejectReasonValidation            RejectReason = "VALIDATION"
	RejectReasonInsufficientFunds     RejectReason = "INSUFFICIENT_FUNDS"
	RejectReasonInsufficientPosition  RejectReason = "INSUFFICIENT_POSITION"
	RejectReasonConcentrationExceeded RejectReason = "CONCENTRATION_LIMIT_EXCEEDED"
)

// Terminal reports whether an order status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}
