package models

// LoginRequest is the body of POST /v1/external/login. With Remember set the
// credentials are stored, encrypted, for the caller's account.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Remember   bool   `json:"remember"`
}

// LoginResponse carries the provider session back to the caller.
type LoginResponse struct {
	ExternalAccountID string `json:"external_account_id"`
	SessionToken      string `json:"session_token"`
	Remembered        bool   `json:"remembered"`
}

// ShareImportRequest is the body of POST /v1/share/import.
type ShareImportRequest struct {
	ShareKey string `json:"share_key"`
}

// SharePreview is a shared record read without storing it.
type SharePreview struct {
	Character DecodedCharacter    `json:"character"`
	Sheet     NormalizedCharacter `json:"sheet"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
