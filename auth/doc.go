// Package auth defines the credential-issuance abstraction used by all
// request-issuing code: an Authorizer obtains, stores and refreshes access
// credentials for a set of authorization domains and attaches them to
// outgoing HTTP requests.
//
// Three implementations are provided in subpackages: clientlogin (legacy
// username/password login), oauth1 (three-legged OAuth 1.0a) and oauth2
// (authorization-code + refresh-token OAuth 2.0). Callers construct one
// authorizer per logical credential set, drive its authentication entry
// points, then hand it to request-issuing code which calls ProcessRequest
// per outgoing request and falls back to RefreshAuthorization when the
// server reports that authentication is required.
package auth
