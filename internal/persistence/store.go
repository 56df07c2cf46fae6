package persistence

import (
	"encoding/binary"

	"github.com/dgraph-io/badger/v3"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// schemaVersion is bumped whenever the key layout in keys.go changes in a
// way existing databases need migrating for. There is exactly one version
// today, so Open's migration check is a no-op past validating it.
const schemaVersion = 1

// Store owns the badger handle and the single write transaction the
// persistence actor accumulates diffs into between commits (spec.md §4.3
// "Transaction batching").
type Store struct {
	db  *badger.DB
	log slog.Log

	uncommittedThreshold int
	uncommitted          int
	txn                  *badger.Txn

	// folderInfoSeqs and fileInfoSeqs map a row's logical identity to the
	// store-allocated 64-bit key sequence its row lives under (spec.md
	// §4.3). Rebuilt from the key bytes during LoadCluster; rows written
	// before the first load allocate fresh sequences.
	folderInfoSeqs map[string]uint64
	fileInfoSeqs   map[string]uint64
}

// Open acquires the badger directory exclusively (badger.Open already
// takes a directory lock; a second Open against the same path fails
// rather than silently sharing the instance, per spec.md §4.3 "Exclusive
// open").
func Open(dir string, uncommittedThreshold int, log slog.Log) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // the teacher's packages log through slog, not badger's own logger
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.New(errs.KindDBError, "persistence.Open", err)
	}

	s := &Store{
		db:                   db,
		log:                  log,
		uncommittedThreshold: uncommittedThreshold,
		folderInfoSeqs:       make(map[string]uint64),
		fileInfoSeqs:         make(map[string]uint64),
	}
	if err := s.checkOrWriteVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// checkOrWriteVersion compares the stored u32_be schema version against
// the build's and stamps it on a fresh database (spec.md §6
// "{misc, db_version} → u32_be").
func (s *Store) checkOrWriteVersion() error {
	var stamp [4]byte
	binary.BigEndian.PutUint32(stamp[:], schemaVersion)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(dbVersionKey)
		if err == badger.ErrKeyNotFound {
			return txn.Set(dbVersionKey, stamp[:])
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 4 || binary.BigEndian.Uint32(val) != schemaVersion {
				return errs.New(errs.KindDBError, "persistence: unsupported schema version", nil)
			}
			return nil
		})
	})
}

func (s *Store) Close() error {
	if s.txn != nil {
		_ = s.txn.Commit()
		s.txn = nil
	}
	if err := s.db.Close(); err != nil {
		return errs.New(errs.KindDBError, "persistence.Close", err)
	}
	return nil
}

func (s *Store) ensureTxn() {
	if s.txn == nil {
		s.txn = s.db.NewTransaction(true)
	}
}

// put writes key/val into the open transaction, force-committing and
// retrying once if the transaction has grown past badger's own size
// limit (ErrTxnTooBig) — a condition distinct from, and independent of,
// the UncommittedThreshold policy.
func (s *Store) put(key, val []byte) error {
	s.ensureTxn()
	if err := s.txn.Set(key, val); err == badger.ErrTxnTooBig {
		if cErr := s.commit(); cErr != nil {
			return cErr
		}
		s.ensureTxn()
		if err = s.txn.Set(key, val); err != nil {
			return errs.New(errs.KindDBError, "persistence.put", err)
		}
	} else if err != nil {
		return errs.New(errs.KindDBError, "persistence.put", err)
	}
	s.uncommitted++
	return nil
}

func (s *Store) delete(key []byte) error {
	s.ensureTxn()
	if err := s.txn.Delete(key); err != nil {
		return errs.New(errs.KindDBError, "persistence.delete", err)
	}
	s.uncommitted++
	return nil
}

// commit flushes the open transaction unconditionally.
func (s *Store) commit() error {
	if s.txn == nil {
		return nil
	}
	err := s.txn.Commit()
	s.txn = nil
	s.uncommitted = 0
	if err != nil {
		return errs.New(errs.KindDBError, "persistence.commit", err)
	}
	return nil
}

// maybeCommit commits if forced or the accumulated write count has
// crossed uncommittedThreshold (spec.md §4.3).
func (s *Store) maybeCommit(force bool) error {
	if force || s.uncommitted >= s.uncommittedThreshold {
		return s.commit()
	}
	return nil
}

// --- key-sequence allocation (spec.md §4.3: folder-info and file-info
// key bodies are 64-bit sequences from the store's own generator) ---

func folderInfoIdent(folderID, deviceID string) string {
	return folderID + "\x00" + deviceID
}

func fileInfoIdent(folderID, deviceID, name string) string {
	return folderID + "\x00" + deviceID + "\x00" + name
}

// folderInfoKeyFor returns the row key for (folder, device), allocating a
// fresh sequence from NextSequence the first time the pairing is written.
func (s *Store) folderInfoKeyFor(folderID, deviceID string) ([]byte, error) {
	ident := folderInfoIdent(folderID, deviceID)
	seq, ok := s.folderInfoSeqs[ident]
	if !ok {
		var err error
		if seq, err = s.NextSequence(); err != nil {
			return nil, err
		}
		s.folderInfoSeqs[ident] = seq
	}
	return folderInfoKey(seq), nil
}

// fileInfoKeyFor returns the row key for (folder, device, name),
// allocating a fresh sequence on first write so rewrites of the same file
// land on the same key.
func (s *Store) fileInfoKeyFor(folderID, deviceID, name string) ([]byte, error) {
	ident := fileInfoIdent(folderID, deviceID, name)
	seq, ok := s.fileInfoSeqs[ident]
	if !ok {
		var err error
		if seq, err = s.NextSequence(); err != nil {
			return nil, err
		}
		s.fileInfoSeqs[ident] = seq
	}
	return fileInfoKey(seq), nil
}

// deleteFolderInfo drops the (folder, device) row and forgets its
// sequence.
func (s *Store) deleteFolderInfo(folderID, deviceID string) error {
	ident := folderInfoIdent(folderID, deviceID)
	seq, ok := s.folderInfoSeqs[ident]
	if !ok {
		return nil
	}
	delete(s.folderInfoSeqs, ident)
	return s.delete(folderInfoKey(seq))
}

// deleteFileInfosFor drops every file-info row belonging to (folder,
// device), e.g. on unshare. Deletes go through the normal write path so
// they participate in the same commit/threshold bookkeeping as
// everything else.
func (s *Store) deleteFileInfosFor(folderID, deviceID string) error {
	prefix := folderID + "\x00" + deviceID + "\x00"
	for ident, seq := range s.fileInfoSeqs {
		if len(ident) < len(prefix) || ident[:len(prefix)] != prefix {
			continue
		}
		if err := s.delete(fileInfoKey(seq)); err != nil {
			return err
		}
		delete(s.fileInfoSeqs, ident)
	}
	return nil
}

// NextSequence hands out a monotone, durable 64-bit counter independent of
// any folder's own MaxSequence bookkeeping; folderInfoKeyFor and
// fileInfoKeyFor allocate their key bodies from it (spec.md §4.3). It
// always commits its own transaction immediately: callers rely on never
// seeing the same value twice even across a crash.
func (s *Store) NextSequence() (uint64, error) {
	var next uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sequenceKey)
		var cur uint64
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				cur = decodeUint64(val)
				return nil
			}); verr != nil {
				return verr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		next = cur + 1
		return txn.Set(sequenceKey, encodeUint64(next))
	})
	if err != nil {
		return 0, errs.New(errs.KindDBError, "persistence.NextSequence", err)
	}
	return next, nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
