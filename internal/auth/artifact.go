package auth

// Kind identifies which Google artifact an exchange request carries.
type Kind string

const (
	// KindCredential is a signed Google ID credential verified locally.
	KindCredential Kind = "credential"

	// KindTempToken is a single-use temporary token minted by the
	// server-side callback.
	KindTempToken Kind = "temp_token"

	// KindAuthCode is an OAuth authorization code redeemed directly
	// with Google, paired with an anti-forgery state.
	KindAuthCode Kind = "auth_code"
)

// Artifact is the one-of request body of an exchange. Exactly one of the
// three artifact kinds is expected; when more than one is present the
// temporary token wins, then the signed credential, then the code pair.
// The authorization code is accepted under both the authorization_code
// and the shorter code key.
type Artifact struct {
	Credential        string `json:"credential,omitempty"`
	TempToken         string `json:"temp_token,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Code              string `json:"code,omitempty"`
	State             string `json:"state,omitempty"`
}

// AuthCode returns the authorization code whichever key carried it.
func (a Artifact) AuthCode() string {
	if a.AuthorizationCode != "" {
		return a.AuthorizationCode
	}
	return a.Code
}

// Kind reports which exchange path the artifact selects, or an
// invalid_credential error when the body carries none.
func (a Artifact) Kind() (Kind, *AuthError) {
	switch {
	case a.TempToken != "":
		return KindTempToken, nil
	case a.Credential != "":
		return KindCredential, nil
	case a.AuthCode() != "":
		return KindAuthCode, nil
	default:
		return "", ErrInvalidCredential("no credential, temp_token, or authorization_code provided")
	}
}
