// Package auth implements the credential exchange: it verifies Google
// artifacts (signed ID credentials, single-use temporary tokens, and
// authorization codes) and resolves them into application identities.
//
// Three exchange paths share one entry point:
//
//   - A signed ID credential is verified offline against Google's keys.
//   - A temporary token, minted by the server-side OAuth callback, is
//     redeemed exactly once against the grant store.
//   - An authorization code is redeemed directly with Google after the
//     anti-forgery state is checked and consumed.
//
// All paths upsert the identity keyed by the stable Google subject, so
// profile fields refresh on every login while the application id persists.
package auth
