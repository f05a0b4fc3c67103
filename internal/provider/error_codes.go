// internal/provider/error_codes.go
package provider

import (
	"errors"
	"fmt"
)

// Failure categories. Payment and auth are critical: the reconciler raises an
// account-level alert for them.
const (
	CategoryInvalidRecipient = "invalid_recipient"
	CategoryTemplate         = "template"
	CategoryRateLimit        = "rate_limit"
	CategorySessionWindow    = "session_window"
	CategoryPayment          = "payment"
	CategoryAuth             = "auth"
	CategoryTransient        = "transient"
	CategoryUnknown          = "unknown"
)

// APIError is a Cloud API rejection as returned in the response envelope.
type APIError struct {
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error %d: %s", e.Code, e.Message)
}

// Failure is the normalized view of a provider error code.
type Failure struct {
	Category    string
	UserMessage string
	Retryable   bool
}

// failureTable maps Cloud API error codes to normalized failures. Codes not
// listed fall through to CategoryUnknown, non-retryable.
var failureTable = map[int]Failure{
	190:    {Category: CategoryAuth, UserMessage: "Access token expired. Reconnect your WhatsApp account.", Retryable: false},
	10:     {Category: CategoryAuth, UserMessage: "The app does not have permission to send messages.", Retryable: false},
	368:    {Category: CategoryAuth, UserMessage: "The account is temporarily blocked for policy violations.", Retryable: false},
	4:      {Category: CategoryRateLimit, UserMessage: "API rate limit reached. Sending will resume shortly.", Retryable: true},
	80007:  {Category: CategoryRateLimit, UserMessage: "Throughput limit reached. Sending will resume shortly.", Retryable: true},
	130429: {Category: CategoryRateLimit, UserMessage: "Message rate limit reached. Sending will resume shortly.", Retryable: true},
	131048: {Category: CategoryRateLimit, UserMessage: "Sending paused due to spam rate limits on the account.", Retryable: true},
	131056: {Category: CategoryRateLimit, UserMessage: "Too many messages to this recipient in a short period.", Retryable: true},
	131000: {Category: CategoryTransient, UserMessage: "The provider reported a temporary internal error.", Retryable: true},
	131016: {Category: CategoryTransient, UserMessage: "The provider service is temporarily unavailable.", Retryable: true},
	131026: {Category: CategoryInvalidRecipient, UserMessage: "This number cannot receive WhatsApp messages.", Retryable: false},
	131021: {Category: CategoryInvalidRecipient, UserMessage: "Sender and recipient numbers are the same.", Retryable: false},
	131047: {Category: CategorySessionWindow, UserMessage: "More than 24 hours since the recipient's last reply; a template message is required.", Retryable: false},
	132000: {Category: CategoryTemplate, UserMessage: "Template parameter count does not match the approved template.", Retryable: false},
	132001: {Category: CategoryTemplate, UserMessage: "Template does not exist in the given language.", Retryable: false},
	132005: {Category: CategoryTemplate, UserMessage: "Template text is too long.", Retryable: false},
	132007: {Category: CategoryTemplate, UserMessage: "Template content violates the provider's policy.", Retryable: false},
	132012: {Category: CategoryTemplate, UserMessage: "Template parameter format does not match the approved template.", Retryable: false},
	131042: {Category: CategoryPayment, UserMessage: "There is a billing or payment problem with the WhatsApp business account.", Retryable: false},
}

// ClassifyCode normalizes a Cloud API numeric error code.
func ClassifyCode(code int) Failure {
	if f, ok := failureTable[code]; ok {
		return f
	}
	return Failure{
		Category:    CategoryUnknown,
		UserMessage: "The message could not be sent.",
		Retryable:   false,
	}
}

// Classify normalizes any send error. Transport errors (timeouts, connection
// resets) have no provider code and are treated as transient.
func Classify(err error) (code int, f Failure) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, ClassifyCode(apiErr.Code)
	}
	return 0, Failure{
		Category:    CategoryTransient,
		UserMessage: "The message could not be sent due to a network error.",
		Retryable:   true,
	}
}

// Critical reports whether a failure category must raise an account alert.
func Critical(category string) bool {
	return category == CategoryPayment || category == CategoryAuth
}
