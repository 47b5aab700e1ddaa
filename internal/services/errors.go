package services

import (
	"errors"
	"net/http"
)

// ErrorInfo describes one kind of payment flow failure and how it surfaces over HTTP.
type ErrorInfo struct {
	Name    string
	Status  int
	Message string
}

var (
	InfoInvalidAmount = ErrorInfo{
		Name:    "InvalidAmount",
		Status:  http.StatusBadRequest,
		Message: "Amount must be greater than zero",
	}
	InfoGatewayUnavailable = ErrorInfo{
		Name:    "GatewayUnavailable",
		Status:  http.StatusServiceUnavailable,
		Message: "Payment gateway is unavailable, try again shortly",
	}
	InfoInvalidSignature = ErrorInfo{
		Name:    "InvalidSignature",
		Status:  http.StatusBadRequest,
		Message: "Payment signature verification failed",
	}
	InfoPaymentNotFound = ErrorInfo{
		Name:    "PaymentNotFound",
		Status:  http.StatusNotFound,
		Message: "Payment not found",
	}
	InfoPersistenceFailure = ErrorInfo{
		Name:    "PersistenceFailure",
		Status:  http.StatusInternalServerError,
		Message: "Payment received but verification pending. Please contact support",
	}
	InfoAnomalousWebhook = ErrorInfo{
		Name:    "AnomalousWebhook",
		Status:  http.StatusOK,
		Message: "Webhook references an unknown payment",
	}
	InfoUnauthorized = ErrorInfo{
		Name:    "Unauthorized",
		Status:  http.StatusUnauthorized,
		Message: "Unauthorized",
	}
	InfoInvalidRequest = ErrorInfo{
		Name:    "InvalidRequest",
		Status:  http.StatusBadRequest,
		Message: "Invalid request",
	}
	InfoProjectNotFound = ErrorInfo{
		Name:    "ProjectNotFound",
		Status:  http.StatusNotFound,
		Message: "Project not found",
	}
	InfoInvalidTransition = ErrorInfo{
		Name:    "InvalidTransition",
		Status:  http.StatusConflict,
		Message: "Status change is not allowed",
	}
	InfoPaymentClosed = ErrorInfo{
		Name:    "PaymentClosed",
		Status:  http.StatusConflict,
		Message: "Payment was refunded or cancelled",
	}
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidAmount      = &PaymentError{Info: InfoInvalidAmount}
	ErrGatewayUnavailable = &PaymentError{Info: InfoGatewayUnavailable}
	ErrInvalidSignature   = &PaymentError{Info: InfoInvalidSignature}
	ErrPaymentNotFound    = &PaymentError{Info: InfoPaymentNotFound}
	ErrPersistenceFailure = &PaymentError{Info: InfoPersistenceFailure}
	ErrAnomalousWebhook   = &PaymentError{Info: InfoAnomalousWebhook}
	ErrUnauthorized       = &PaymentError{Info: InfoUnauthorized}
	ErrInvalidRequest     = &PaymentError{Info: InfoInvalidRequest}
	ErrProjectNotFound    = &PaymentError{Info: InfoProjectNotFound}
	ErrInvalidTransition  = &PaymentError{Info: InfoInvalidTransition}
	ErrPaymentClosed      = &PaymentError{Info: InfoPaymentClosed}
)

// PaymentError is a classified failure with an optional cause.
type PaymentError struct {
	Info ErrorInfo
	Err  error
}

func newPaymentError(info ErrorInfo, cause error) *PaymentError {
	return &PaymentError{Info: info, Err: cause}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Info.Name + ": " + e.Err.Error()
	}
	return e.Info.Name
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches any PaymentError of the same kind.
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	return ok && t.Info.Name == e.Info.Name
}

// AsPaymentError extracts the classified error, if any.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
