package domain

// TOTPEnrollment is handed to the user once when they start enrolling an
// authenticator app.
type TOTPEnrollment struct {
	Secret  string // Base32 encoded secret for TOTP
	URL     string // otpauth:// URL for QR code generation
	Issuer  string // Issuer name (e.g., service name)
	Account string // Account name (the user's email)
}
