package shared

// ForgeCredentials holds what is needed to talk to an issue tracker.
type ForgeCredentials struct {
	Provider string
	BaseURL  string
	Token    string
}
