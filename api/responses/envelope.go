package responses

// Envelope wraps every successful payload.
type Envelope struct {
	Data any `json:"data"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the single failure shape clients branch on; Code is stable, Message is display text.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
