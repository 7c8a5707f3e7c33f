// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPending    Status = "pending" // 初始状态
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered" // 会同时记录送达时间
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// ParseStatus 校验并返回状态值
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// PaymentMethod 只做记录，本服务不处理支付
type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentDebitCard      PaymentMethod = "debit_card"
	PaymentPaypal         PaymentMethod = "paypal"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(s); pm {
	case PaymentCreditCard, PaymentDebitCard, PaymentPaypal, PaymentCashOnDelivery:
		return pm, nil
	}
	return "", NewValidationError(ErrInvalidPaymentMethod, "Invalid payment method")
}
