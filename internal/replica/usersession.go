package replica

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/rpc"
)

// UserSession is the per-connected-client state: at
// most one logged-in user, a reference to the owning RPC session for
// server-initiated notifications, and the state machine's login/logout/send
// handlers behind it. Invariant enforced here: a session logs in at most
// once (a second login attempt fails 306).
type UserSession struct {
	mu      sync.Mutex
	current *chat.User

	rpcSess *rpc.Session
	state   *State
	logger  *zap.Logger
}

func newUserSession(rpcSess *rpc.Session, state *State) *UserSession {
	return &UserSession{
		rpcSess: rpcSess,
		state:   state,
		logger:  state.logger.Named("usersession"),
	}
}

// CurrentUser returns the logged-in user on this connection, if any.
func (u *UserSession) CurrentUser() (chat.User, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == nil {
		return "", false
	}
	return *u.current, true
}

// login handles this connection's login request. Fails 306 if this
// connection already has a logged-in user.
func (u *UserSession) login(ctx context.Context, user chat.User) (chat.MessageList, error) {
	u.mu.Lock()
	if u.current != nil {
		already := *u.current
		u.mu.Unlock()
		return nil, chat.ErrAlreadyLoggedInSession(already)
	}
	u.mu.Unlock()

	pending, err := u.state.handleLogin(user, u)
	if err != nil {
		return nil, err
	}
	u.state.forward(ctx, "retrieve_pending", []any{user})

	u.mu.Lock()
	cp := user
	u.current = &cp
	u.mu.Unlock()
	return pending, nil
}

// logout idempotently clears the logged-in user, if any, and releases the
// claim in the state's logins table.
func (u *UserSession) logout() {
	u.mu.Lock()
	cur := u.current
	u.current = nil
	u.mu.Unlock()

	if cur != nil {
		u.state.handleLogout(*cur)
	}
}

// deliver pushes a server-initiated receive_message notification to this
// connection's client.
func (u *UserSession) deliver(ctx context.Context, msg chat.Message) {
	if _, err := u.rpcSess.Request(ctx, "receive_message", []any{msg}, true); err != nil {
		u.logger.Warn("failed to deliver message to logged-in user",
			zap.String("recipient", string(msg.Recipient)), zap.Error(err))
	}
}

// cleanup runs once the owning connection closes: an idempotent logout.
func (u *UserSession) cleanup() {
	u.logout()
}
