// Package auth provides bearer-token authentication and role-based
// authorisation for the Gray Logic rules service.
//
// Tokens are HS256 JWTs carrying a subject and a Role. The service never
// stores users: whoever holds the shared secret (the Core, or an operator
// using the token helper) mints tokens, and this package validates them by
// signature, expiry and optional issuer.
//
// Roles map statically to permissions:
//
//	viewer    rule:read, type:read
//	operator  viewer + rule:execute
//	admin     operator + rule:manage
package auth
