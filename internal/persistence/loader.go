package persistence

import (
	"github.com/dgraph-io/badger/v3"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model/diff"
)

// LoadCluster implements the load protocol (spec.md §4.3): open a
// read-only transaction, scan each entity-kind prefix into its own load
// diff, and package the lot into a LoadCluster aggregate for the
// coordinator to apply. The transaction is closed before returning, so the
// aggregate's CloseTransaction sentinel has nothing left to close and is a
// no-op here.
func (s *Store) LoadCluster() (*diff.LoadCluster, error) {
	lc := diff.NewLoadCluster()

	err := s.db.View(func(txn *badger.Txn) error {
		if err := scanPrefix(txn, []byte{prefixDevice}, func(_, v []byte) error {
			d, err := decodeDevice(v)
			if err != nil {
				return err
			}
			lc.Devices.Devices = append(lc.Devices.Devices, d)
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, []byte{prefixFolder}, func(_, v []byte) error {
			f, err := decodeFolder(v)
			if err != nil {
				return err
			}
			lc.Folders.Folders = append(lc.Folders.Folders, f)
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, []byte{prefixBlockInfo}, func(_, v []byte) error {
			b, err := decodeBlockInfo(v)
			if err != nil {
				return err
			}
			lc.Blocks.Blocks = append(lc.Blocks.Blocks, b)
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, []byte{prefixFolderInfo}, func(k, v []byte) error {
			m, err := decodeFolderInfoMeta(v)
			if err != nil {
				return err
			}
			s.folderInfoSeqs[folderInfoIdent(m.FolderID, m.DeviceID)] = keySeqOf(k)
			lc.FolderInfos.Entries = append(lc.FolderInfos.Entries, &diff.LoadFolderInfoEntry{
				FolderID:    m.FolderID,
				DeviceID:    m.DeviceID,
				IndexID:     m.IndexID,
				MaxSequence: m.MaxSequence,
			})
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, []byte{prefixFileInfo}, func(k, v []byte) error {
			folderID, deviceID, f, err := decodeFileInfoRow(v)
			if err != nil {
				return err
			}
			s.fileInfoSeqs[fileInfoIdent(folderID, deviceID, f.Name)] = keySeqOf(k)
			lc.FileInfos.Entries = append(lc.FileInfos.Entries, &diff.LoadFileInfoEntry{
				FolderID: folderID,
				DeviceID: deviceID,
				File:     f,
			})
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, []byte{prefixIgnoredDevice}, func(k, _ []byte) error {
			lc.IgnoredDevices.IDs = append(lc.IgnoredDevices.IDs, string(k[1:]))
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, []byte{prefixIgnoredFolder}, func(k, _ []byte) error {
			lc.IgnoredFolders.IDs = append(lc.IgnoredFolders.IDs, string(k[1:]))
			return nil
		}); err != nil {
			return err
		}

		return scanPrefix(txn, []byte{prefixUnknownFolder}, func(_, v []byte) error {
			u, err := decodeUnknownFolder(v)
			if err != nil {
				return err
			}
			lc.UnknownFolders.Folders = append(lc.UnknownFolders.Folders, u)
			return nil
		})
	})
	if err != nil {
		return nil, errs.New(errs.KindDBError, "persistence.LoadCluster", err)
	}
	return lc, nil
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}
