package google

// DefaultOAuthScopes are the Google OAuth scopes requested during sign-in.
// They are used consistently across the application for OAuth configurations.
//
// The scopes provide access to:
//   - Gmail: read and send
//   - Google Calendar: full access
//   - Google Tasks: full access
var DefaultOAuthScopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",

	// Gmail scopes
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",

	// Google Calendar scope
	"https://www.googleapis.com/auth/calendar",

	// Google Tasks scope
	"https://www.googleapis.com/auth/tasks",
}
