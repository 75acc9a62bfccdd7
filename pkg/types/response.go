package types

// SuccessEnvelope wraps every successful API payload under a data key.
// Webhook acks and the payment confirm response are the two exceptions; they
// write their own top-level shape.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
