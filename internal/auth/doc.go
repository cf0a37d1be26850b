// Package auth issues and validates the bearer tokens of the admin API.
//
// Tokens are HS256 JWTs carrying a subject and a Role. A viewer can read
// link status, peers and events; an operator can also drive the link.
//
//	token, err := auth.GenerateToken("dashboard", auth.RoleViewer, secret, time.Hour)
//	claims, err := auth.ParseToken(token, secret)
//	if auth.HasPermission(claims.Role, auth.PermLinkControl) { ... }
package auth
