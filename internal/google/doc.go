// Package google holds the Google OAuth client configuration, the scope
// catalog requested at sign-in, and the credential source that keeps stored
// Google tokens fresh for tool dispatch.
package google
