package domain

// BootstrapData describes what first start creates when the store is empty.
type BootstrapData struct {
	AdminEmail    string
	AdminName     string
	AdminPassword string

	// PlatformClient is the first-party application that skips consent.
	PlatformClient Client
}
