// Package identity issues and verifies bearer tokens and turns them into a
// Principal the governance pipeline trusts.
//
// Tokens are HS256 JWTs carrying the user id (subject), role and session id.
// Verification checks the signature, issuer and expiry, then confirms the
// session is still active in the session store. Permissions are resolved
// from the role table of the active knowledge pack, so a role change in the
// pack applies to tokens already issued.
//
//	tm, err := identity.NewTokenManager(identity.Config{Secret: secret}, sessions, packs)
//	tok, sess, err := tm.Issue(ctx, "user_001", "analyst")
//	p, err := tm.Verify(ctx, tok)
package identity
