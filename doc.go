// Package auth issues and renews signed session tokens for username and
// password logins.
//
// Dual expiry:
//   - Every token carries a lease (exp) and the original authentication
//     time (iat). A token is usable while its lease is current.
//   - A lease expired token can be exchanged for a new one by Renew, as long
//     as the session window (iat + SessionDuration) has not closed. The new
//     token keeps iat and gets a fresh lease, so renewal slides the lease but
//     never the session.
//   - Renew reads the account state and the roles again, so disabling a user
//     or changing their roles takes effect at the next renewal.
//
// Components:
//   - JWTCodec mints and decodes HS256 tokens. It never touches a store.
//   - CredentialVerifier checks passwords (StoreVerifier over a
//     CredentialStore, or the ldap package).
//   - RoleProvider supplies the role snapshot embedded in each token.
//   - SessionManager ties them together: Authenticate, Evaluate, Renew,
//     WhoAmI and Logout.
//   - RouteAuthenticator and AuthController expose the manager over go-router,
//     with the token carried in a cookie or an Authorization header.
//
// Errors:
//   - Every failure is a *errors.Error from github.com/goliatone/go-errors.
//     KindOf classifies it and PublicError returns the only shape a client
//     sees, so an unknown user and a wrong password are indistinguishable.
//
// Activity sinks:
//   - ActivitySink receives login, renewal, session expiry and logout events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking authentication.
package auth
