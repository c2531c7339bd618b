package dto

// ScanRequest carries the user ID decoded from a scanned QR code.
type ScanRequest struct {
	UserID string `json:"user_id"`
}

// ScanResponse confirms a check-in.
type ScanResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
}

// CredentialResponse returns a regenerated QR code location.
type CredentialResponse struct {
	UserID    string `json:"user_id"`
	QRCodeURL string `json:"qr_code_url"`
}

// SendMessageRequest is a manual admin message.
type SendMessageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}
