package replica

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/rpc"
)

// registerHandlers wires the full method table — client surface plus
// replication surface — onto sess. Every accepted connection gets both:
// a genuine client never calls the replication methods, and a joining
// downstream never calls the client methods, so there is no harm in one
// shared table; register_client is the one method whose behavior depends
// on current role and is gated internally.
func (s *State) registerHandlers(sess *rpc.Session, userSess *UserSession) {
	s.registerClientHandlers(sess, userSess)
	s.registerReplicationHandlers(sess)
}

func (s *State) registerClientHandlers(sess *rpc.Session, userSess *UserSession) {
	sess.RegisterHandler("register_client", func(ctx context.Context, params []json.RawMessage) (any, error) {
		if !s.IsPrimary() {
			return nil, chat.ErrImABackup()
		}
		return chat.Ok{}, nil
	})

	sess.RegisterHandler("ping", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.Ok{}, nil
	})

	sess.RegisterHandler("create_user", s.wrapUserArg(s.createUser))
	sess.RegisterHandler("list_users", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return s.listUsers(), nil
	})
	sess.RegisterHandler("delete_user", s.wrapUserArg(s.deleteUser))

	sess.RegisterHandler("login", func(ctx context.Context, params []json.RawMessage) (any, error) {
		user, err := decodeUser(params)
		if err != nil {
			return nil, err
		}
		return userSess.login(ctx, user)
	})

	sess.RegisterHandler("send", func(ctx context.Context, params []json.RawMessage) (any, error) {
		if len(params) != 2 {
			return nil, rpc.BadRequest("send expects (text, recipient)")
		}
		var text string
		var recipient chat.User
		if err := json.Unmarshal(params[0], &text); err != nil {
			return nil, rpc.BadRequest(err.Error())
		}
		if err := json.Unmarshal(params[1], &recipient); err != nil {
			return nil, rpc.BadRequest(err.Error())
		}
		sender, ok := userSess.CurrentUser()
		if !ok {
			return nil, chat.ErrNotLoggedIn()
		}
		return s.handleSend(ctx, sender, recipient, text)
	})
}

func (s *State) registerReplicationHandlers(sess *rpc.Session) {
	sess.RegisterHandler("register_replica_source", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return s.handleRegisterReplicaSource(ctx, params)
	})
	sess.RegisterHandler("update_db", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return s.handleUpdateDb(ctx, params)
	})
	sess.RegisterHandler("retrieve_pending", func(ctx context.Context, params []json.RawMessage) (any, error) {
		user, err := decodeUser(params)
		if err != nil {
			return nil, err
		}
		return s.replicaRetrievePending(ctx, user)
	})
	sess.RegisterHandler("store_msg", func(ctx context.Context, params []json.RawMessage) (any, error) {
		if len(params) != 1 {
			return nil, rpc.BadRequest("store_msg expects (message)")
		}
		var msg chat.Message
		if err := json.Unmarshal(params[0], &msg); err != nil {
			return nil, rpc.BadRequest(err.Error())
		}
		return s.replicaStoreMsg(ctx, msg)
	})
	sess.RegisterHandler("create_user", s.wrapUserArg(s.createUser))
	sess.RegisterHandler("delete_user", s.wrapUserArg(s.deleteUser))
	sess.RegisterHandler("ping", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.Ok{}, nil
	})
}

func (s *State) wrapUserArg(fn func(context.Context, chat.User) (any, error)) rpc.Handler {
	return func(ctx context.Context, params []json.RawMessage) (any, error) {
		user, err := decodeUser(params)
		if err != nil {
			return nil, err
		}
		return fn(ctx, user)
	}
}

func decodeUser(params []json.RawMessage) (chat.User, error) {
	if len(params) != 1 {
		return "", rpc.BadRequest("expected exactly one User argument")
	}
	var u chat.User
	if err := json.Unmarshal(params[0], &u); err != nil {
		return "", rpc.BadRequest(err.Error())
	}
	return u, nil
}

// --- Client surface domain logic ---

func (s *State) createUser(ctx context.Context, user chat.User) (any, error) {
	if err := s.db.CreateUser(user); err != nil {
		return nil, err
	}
	s.audit.RecordMutation("create_user", string(user))
	s.forward(ctx, "create_user", []any{user})
	return chat.Ok{}, nil
}

func (s *State) deleteUser(ctx context.Context, user chat.User) (any, error) {
	// Idempotent: deleting an absent user is a successful no-op.
	if s.db.Contains(user) {
		s.forceLogout(user)
		if err := s.db.DeleteUser(user); err != nil {
			return nil, err
		}
		s.audit.RecordMutation("delete_user", string(user))
	}
	s.forward(ctx, "delete_user", []any{user})
	return chat.Ok{}, nil
}

func (s *State) listUsers() []chat.User {
	return s.db.Users()
}

// handleLogin is called by UserSession.login after it has confirmed this
// connection has no existing login.
func (s *State) handleLogin(user chat.User, sess *UserSession) (chat.MessageList, error) {
	if !s.db.Contains(user) {
		return nil, chat.ErrNoSuchUser(user)
	}

	s.mu.Lock()
	if _, already := s.logins[user]; already {
		s.mu.Unlock()
		return nil, chat.ErrAlreadyLoggedIn(user)
	}
	s.logins[user] = sess
	s.mu.Unlock()

	pending, err := s.db.FetchPending(user)
	if err != nil {
		s.mu.Lock()
		delete(s.logins, user)
		s.mu.Unlock()
		return nil, err
	}
	return pending, nil
}

func (s *State) handleLogout(user chat.User) {
	s.mu.Lock()
	delete(s.logins, user)
	s.mu.Unlock()
}

// forceLogout is invoked when delete_user targets a currently-logged-in
// user: that user's UserSession is invalidated before the delete commits.
func (s *State) forceLogout(user chat.User) {
	s.mu.Lock()
	sess, ok := s.logins[user]
	delete(s.logins, user)
	s.mu.Unlock()
	if ok {
		sess.mu.Lock()
		sess.current = nil
		sess.mu.Unlock()
	}
}

func (s *State) handleSend(ctx context.Context, sender, recipient chat.User, text string) (any, error) {
	if !s.db.Contains(recipient) {
		return nil, chat.ErrNoSuchUser(recipient)
	}

	msg := chat.Message{Sender: sender, Recipient: recipient, Content: text}

	s.mu.Lock()
	recipientSess, online := s.logins[recipient]
	s.mu.Unlock()

	if online {
		recipientSess.deliver(ctx, msg)
	} else {
		if err := s.db.Append(recipient, msg); err != nil {
			return nil, err
		}
	}
	s.metrics.MessageRelayed()
	if !online {
		s.audit.RecordMutation("store_msg", fmt.Sprintf("%s->%s", sender, recipient))
		s.forward(ctx, "store_msg", []any{msg})
	}
	return chat.Ok{}, nil
}

// --- Replication surface domain logic ---

func (s *State) handleRegisterReplicaSource(ctx context.Context, params []json.RawMessage) (any, error) {
	if s.IsPrimary() {
		return nil, chat.ErrImAPrimary()
	}
	payload, err := decodeDbPayload(params)
	if err != nil {
		return nil, err
	}
	s.upstreamRegistered.Store(true)
	return s.resolveReplicaSource(ctx, payload)
}

func (s *State) handleUpdateDb(ctx context.Context, params []json.RawMessage) (any, error) {
	payload, err := decodeDbPayload(params)
	if err != nil {
		return nil, err
	}
	if err := s.db.ReplaceAll(payload.Db); err != nil {
		return nil, rpc.BadRequest(err.Error())
	}
	s.audit.RecordMutation("update_db", "full snapshot adopted")
	s.forward(ctx, "update_db", []any{payload.Db, payload.Mtime})
	return chat.Ok{}, nil
}

func decodeDbPayload(params []json.RawMessage) (dbPayload, error) {
	if len(params) != 2 {
		return dbPayload{}, rpc.BadRequest("expected (db, mtime)")
	}
	var p dbPayload
	if err := json.Unmarshal(params[0], &p.Db); err != nil {
		return dbPayload{}, rpc.BadRequest(err.Error())
	}
	if err := json.Unmarshal(params[1], &p.Mtime); err != nil {
		return dbPayload{}, rpc.BadRequest(err.Error())
	}
	return p, nil
}

// resolveReplicaSource implements the register_replica_source comparison
// rule: if this replica's own mtime is strictly newer than the offered
// state, reject with its own (newer) snapshot; otherwise adopt the offered
// state and accept.
func (s *State) resolveReplicaSource(ctx context.Context, payload dbPayload) (registerSourceResult, error) {
	ownMtime := fromStat(s.db.Mtime())
	offeredMtime := payload.mtime()

	if offeredMtime.Before(ownMtime) {
		snap := s.db.Snapshot()
		return registerSourceResult{Accepted: false, Db: snap, Mtime: ownMtime.wireNanos()}, nil
	}

	if err := s.db.ReplaceAll(payload.Db); err != nil {
		return registerSourceResult{}, rpc.BadRequest(err.Error())
	}
	s.metrics.ReplicaAdopted()
	s.audit.RecordMutation("register_replica_source", "adopted offered state")

	adoptedMtime := fromStat(s.db.Mtime())
	s.forward(ctx, "update_db", []any{payload.Db, adoptedMtime.wireNanos()})

	return registerSourceResult{Accepted: true}, nil
}

func (s *State) replicaRetrievePending(ctx context.Context, user chat.User) (any, error) {
	// Open Question resolution: fetch (clear) locally before forwarding,
	// so every replica converges on the same post-state regardless of
	// forwarding order.
	if _, err := s.db.FetchPending(user); err != nil {
		return nil, err
	}
	s.audit.RecordMutation("retrieve_pending", string(user))
	s.forward(ctx, "retrieve_pending", []any{user})
	return chat.Ok{}, nil
}

func (s *State) replicaStoreMsg(ctx context.Context, msg chat.Message) (any, error) {
	if err := s.db.Append(msg.Recipient, msg); err != nil {
		return nil, err
	}
	s.audit.RecordMutation("store_msg", fmt.Sprintf("%s->%s", msg.Sender, msg.Recipient))
	s.forward(ctx, "store_msg", []any{msg})
	return chat.Ok{}, nil
}
