package auth

import "time"

// Lifetimes and token sizes for the credential exchange flows.
const (
	// DefaultGrantTTL is how long a temporary token stays redeemable after
	// the server-side OAuth callback issues it.
	DefaultGrantTTL = 10 * time.Minute

	// DefaultStateTTL is how long an anti-forgery state stays valid while the
	// user completes the Google consent screen.
	DefaultStateTTL = 10 * time.Minute

	// DefaultCleanupInterval is how often expired flow state is swept.
	DefaultCleanupInterval = 1 * time.Minute

	// GrantTokenLength is the byte length of temporary token secrets.
	GrantTokenLength = 48

	// StateTokenLength is the byte length of anti-forgery state tokens.
	StateTokenLength = 32
)
