package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
)

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// numeric tags (gt, gte) compare the decimal as a float
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	return v
}

func (s *Service) validate(req *Request) error {
	req.Order.Reference = strings.TrimSpace(req.Order.Reference)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)

	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.ValidationErr("invalid checkout request", map[string]string{"_": err.Error()})
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fieldKey(fe.Namespace())] = messageForTag(fe.Tag(), fe.Param())
	}
	return apperr.ValidationErr("invalid checkout request", fields)
}

// fieldKey drops the root struct name: "Request.orderData.total" -> "orderData.total".
func fieldKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be at least " + param
	case "min":
		return "must have at least " + param + " entries"
	case "max":
		return "must be at most " + param + " characters"
	case "len":
		return "must be exactly " + param + " characters"
	default:
		return "is invalid"
	}
}
