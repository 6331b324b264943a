package replica

import "github.com/replichat/replichat/internal/chat"

// dbPayload is the wire shape carried by register_replica_source and
// update_db: a full snapshot of one replica's store plus its mtime.
type dbPayload struct {
	Db    map[chat.User]chat.MessageList `json:"db"`
	Mtime *int64                         `json:"mtime"`
}

func newDbPayload(snapshot map[chat.User]chat.MessageList, mtime Mtime) dbPayload {
	return dbPayload{Db: snapshot, Mtime: mtime.wireNanos()}
}

func (p dbPayload) mtime() Mtime {
	return mtimeFromWire(p.Mtime)
}

// registerSourceResult is register_replica_source's tagged-union result:
// Accepted=true is the Ok case (the backup adopted the upstream's state);
// Accepted=false is the DbUpdate rejection, carrying the backup's own
// (newer) state for the upstream to adopt and cascade further down.
type registerSourceResult struct {
	Accepted bool                           `json:"accepted"`
	Db       map[chat.User]chat.MessageList `json:"db,omitempty"`
	Mtime    *int64                         `json:"mtime,omitempty"`
}

func (r registerSourceResult) rejectedMtime() Mtime {
	return mtimeFromWire(r.Mtime)
}
