// internal/usecase/errors.go
package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラー分類コード。handlerはこれをそのままレスポンスに載せる。
const (
	CodeValidation         = "VALIDATION"
	CodeBusinessRule       = "BUSINESS_RULE"
	CodeInvalidState       = "INVALID_STATE"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeSignatureInvalid   = "SIGNATURE_INVALID"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL"
)

type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func NewHTTPError(status int, code, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

//よく使う組み合わせのショートハンド

func NewValidationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, CodeValidation, message)
}

func NewBusinessRuleError(message string) error {
	return NewHTTPError(http.StatusUnprocessableEntity, CodeBusinessRule, message)
}

func NewInvalidStateError(message string) error {
	return NewHTTPError(http.StatusConflict, CodeInvalidState, message)
}

func NewInsufficientStockError(message string) error {
	return NewHTTPError(http.StatusConflict, CodeInsufficientStock, message)
}

func NewNotFoundError(message string) error {
	return NewHTTPError(http.StatusNotFound, CodeNotFound, message)
}

func NewConflictError(message string) error {
	return NewHTTPError(http.StatusConflict, CodeConflict, message)
}

func NewForbiddenError(message string) error {
	return NewHTTPError(http.StatusForbidden, CodeForbidden, message)
}

func NewUnauthorizedError() error {
	return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
}

func NewInternalError(message string) error {
	return NewHTTPError(http.StatusInternalServerError, CodeInternal, message)
}
