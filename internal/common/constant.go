// Package common contains shared constants and sentinel errors used across
// the course-alerts client packages.
package common

// Storage keys under which credentials survive restarts.
const (
	AccessTokenKey  = "ACCESS_TOKEN"
	RefreshTokenKey = "REFRESH_TOKEN"
)

// Outbound HTTP header names.
const (
	AuthorizationHeaderName = "Authorization"
	RequestIDHeaderName     = "X-Request-ID"
	BearerPrefix            = "Bearer "
)

// GenericErrorMessage is shown when the server gives no detail of its own.
const GenericErrorMessage = "An error occurred. Please try again."
