package application

import (
	"fmt"
	"reflect"
	"strings"

	"storefront/internal/service/order/domain"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type commandValidator struct {
	validate *validator.Validate
}

func newCommandValidator() *commandValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误信息里使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &commandValidator{validate: v}
}

// Validate 在任何修改发生之前检查下单请求，并转换为领域值
func (v *commandValidator) Validate(cmd *PlaceOrderCommand) ([]domain.CartLine, domain.ShippingAddress, domain.PaymentMethod, error) {
	var problems []string

	if err := v.validate.Struct(cmd); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, domain.ShippingAddress{}, "", domain.NewValidationError(nil, err.Error())
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	address := cmd.ShippingAddress.toDomain()
	if len(problems) == 0 {
		// required 不拦截纯空白
		for _, field := range address.Missing() {
			problems = append(problems, fmt.Sprintf("shippingAddress.%s is required", field))
		}
	}

	method, pmErr := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if pmErr != nil && cmd.PaymentMethod != "" {
		problems = append(problems, pmErr.Error())
		return nil, domain.ShippingAddress{}, "", domain.NewValidationError(domain.ErrInvalidPaymentMethod, problems...)
	}
	if len(problems) > 0 {
		return nil, domain.ShippingAddress{}, "", domain.NewValidationError(nil, problems...)
	}

	cart := make([]domain.CartLine, len(cmd.Items))
	for i, item := range cmd.Items {
		cart[i] = domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return cart, address, method, nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "PlaceOrderCommand.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must contain at least %s item", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
