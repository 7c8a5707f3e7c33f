package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrPersistence          = errors.New("order persistence failed")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAccessDenied         = errors.New("access denied")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrNotificationFailed   = errors.New("notification failed")
)

// ValidationError 汇总了输入校验的所有问题，在任何修改之前返回
type ValidationError struct {
	Problems []string
	cause    error
}

func NewValidationError(cause error, problems ...string) *ValidationError {
	return &ValidationError{Problems: problems, cause: cause}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.cause != nil && target == e.cause)
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// InsufficientStockError 指明库存不足的商品。Title 由下单流程补充，账本层只知道 ID。
type InsufficientStockError struct {
	ProductID string
	Title     string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Title
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("Insufficient stock for %s", name)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PersistenceError 表示订单没能可靠写入，调用方可以重试
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "order persistence failed: " + e.Err.Error()
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
