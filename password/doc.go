// Package password hashes credentials with argon2id in PHC string
// format and enforces the password policy applied at registration and
// reset.
package password
