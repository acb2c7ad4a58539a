// Package client talks to the course alerts backend.
//
// # Overview
//
// The package provides:
//  1. The Client interface covering the catalog, account and alert
//     subscription endpoints.
//  2. HTTPClient, a JSON-over-HTTP implementation that attaches the stored
//     access token, tags every request with an X-Request-ID and refreshes
//     the access token transparently when the backend answers 401.
//
// # Token refresh
//
// A request rejected with 401 is retried at most once, after exchanging the
// stored refresh token for a new access token. Refreshes sharing one refresh
// token are coalesced. When a refresh is impossible (no refresh token, the
// refresh endpoint itself rejected, or the retry rejected again) the stored
// credentials are cleared and an events.Logout is published. The client never
// touches session state directly.
//
// # Error Handling
//
// Failures are *APIError values (server status and detail) or wrap the
// sentinels ErrUnauthorized and ErrUnavailable, so callers can match with
// errors.Is. Detail extracts the message suitable for the user.
package client
