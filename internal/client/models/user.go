// Package models holds the client-side projections of the backend's
// accounts, catalog and alert resources.
package models

// User is the cached profile of the signed-in account.
type User struct {
	ID            int    `json:"id"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
}

// NeedsPhone reports whether sign-in should continue with phone collection.
func (u User) NeedsPhone() bool {
	return u.Phone == ""
}

// CredentialPair is what the sign-in and refresh endpoints hand out. Refresh
// may be empty on a refresh response that does not rotate the token.
type CredentialPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
