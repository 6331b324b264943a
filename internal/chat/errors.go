package chat

import "github.com/replichat/replichat/internal/rpc"

// Domain error codes.
const (
	CodeNoSuchUser            = 301
	CodeAlreadyLoggedIn       = 302
	CodeUserAlreadyExists     = 303
	CodeNotLoggedIn           = 304
	CodeAlreadyLoggedInSess   = 306
	CodeImABackup             = 500
	CodeImAPrimary            = 501
)

// ErrNoSuchUser reports that the named user does not exist in this
// replica's Db.
func ErrNoSuchUser(u User) *rpc.Error {
	return rpc.NewError(CodeNoSuchUser, "no such user", u)
}

// ErrAlreadyLoggedIn reports that u is logged in on another connection at
// this replica.
func ErrAlreadyLoggedIn(u User) *rpc.Error {
	return rpc.NewError(CodeAlreadyLoggedIn, "user is already logged in", u)
}

// ErrUserAlreadyExists reports that create_user was called for an existing
// user.
func ErrUserAlreadyExists(u User) *rpc.Error {
	return rpc.NewError(CodeUserAlreadyExists, "user already exists", u)
}

// ErrNotLoggedIn reports that send was attempted on a session with no
// logged-in user.
func ErrNotLoggedIn() *rpc.Error {
	return rpc.NewError(CodeNotLoggedIn, "you must be logged in to send messages", nil)
}

// ErrAlreadyLoggedInSession reports that this connection already has a
// logged-in user (current) and cannot log in again.
func ErrAlreadyLoggedInSession(current User) *rpc.Error {
	return rpc.NewError(CodeAlreadyLoggedInSess, "this session has already logged in",
		map[string]User{"current_user": current})
}

// ErrImABackup reports that a client contacted a backup replica directly.
func ErrImABackup() *rpc.Error {
	return rpc.NewError(CodeImABackup, "I am a backup, connect to primary", nil)
}

// ErrImAPrimary reports that something tried to register a replication
// source against the primary itself.
func ErrImAPrimary() *rpc.Error {
	return rpc.NewError(CodeImAPrimary, "I am primary, refusing to re-register as replica source", nil)
}
