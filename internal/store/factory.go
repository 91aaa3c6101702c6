package store

import "notulis.app/bot/core/db"

// Stores hands out Postgres-backed stores over one connection handle,
// which is either the pool or a transaction.
type Stores struct {
	conn db.DBTX
}

func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.conn)
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.conn)
}

func (s *Stores) Archive() ArchiveStore {
	return newArchiveStore(s.conn)
}
