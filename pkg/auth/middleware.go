package auth

import "net/http"

// Query parameter names carrying the admission credential.
const (
	TokenParam     = "_internalToken"
	TimestampParam = "time"
)

// Validator is satisfied by *Authenticator.
type Validator interface {
	Validate(token, timestamp string) bool
}

// CredentialFromRequest extracts the credential from the request query.
func CredentialFromRequest(r *http.Request) Credential {
	q := r.URL.Query()
	return Credential{
		Token:     q.Get(TokenParam),
		Timestamp: q.Get(TimestampParam),
	}
}

// Middleware rejects requests that do not carry a valid credential.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := CredentialFromRequest(r)
			if cred.Token == "" || cred.Timestamp == "" {
				http.Error(w, "Credential required", http.StatusUnauthorized)
				return
			}

			if !v.Validate(cred.Token, cred.Timestamp) {
				http.Error(w, "Invalid credential", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
