// Package auth provides authentication for the support-chat backend.
//
// Credentials are HS256-signed JWTs carrying the user's display name in
// "sub" and their role (USER or SUPPORT) in "role". The same token is
// accepted two ways: as an Authorization bearer header on REST calls, and
// as an access_token query parameter on the websocket handshake, because
// clients send both forms and the transport negotiation decides which one
// arrives.
//
// Passwords are stored as bcrypt hashes; CheckPassword performs a dummy
// comparison for unknown accounts to keep login timing constant.
package auth
