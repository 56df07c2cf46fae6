package persistence

import (
	"time"

	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/wire"
)

func encodeDevice(d *model.Device) []byte {
	w := wire.NewWriter()
	w.String(d.ID)
	w.String(d.Name)
	w.String(d.CertName)
	w.Uvarint(uint64(d.Compression))
	w.Bool(d.Introducer)
	w.Bool(d.AutoAccept)
	w.Bool(d.Paused)
	w.Uvarint(uint64(len(d.StaticAddrs)))
	for _, a := range d.StaticAddrs {
		w.String(a)
	}
	w.Uvarint(uint64(len(d.LastSeenAddrs)))
	for _, a := range d.LastSeenAddrs {
		w.String(a)
	}
	return w.Bytes()
}

func decodeDevice(b []byte) (*model.Device, error) {
	r := wire.NewReader(b)
	d := &model.Device{}
	var err error
	if d.ID, err = r.String(); err != nil {
		return nil, err
	}
	if d.Name, err = r.String(); err != nil {
		return nil, err
	}
	if d.CertName, err = r.String(); err != nil {
		return nil, err
	}
	compression, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	d.Compression = model.Compression(compression)
	if d.Introducer, err = r.Bool(); err != nil {
		return nil, err
	}
	if d.AutoAccept, err = r.Bool(); err != nil {
		return nil, err
	}
	if d.Paused, err = r.Bool(); err != nil {
		return nil, err
	}
	ns, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < ns; i++ {
		a, err := r.String()
		if err != nil {
			return nil, err
		}
		d.StaticAddrs = append(d.StaticAddrs, a)
	}
	nl, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nl; i++ {
		a, err := r.String()
		if err != nil {
			return nil, err
		}
		d.LastSeenAddrs = append(d.LastSeenAddrs, a)
	}
	return d, nil
}

func encodeFolder(f *model.Folder) []byte {
	w := wire.NewWriter()
	w.String(f.ID)
	w.String(f.Label)
	w.String(f.Path)
	w.Uvarint(uint64(f.Type))
	w.Int64(int64(f.RescanInterval))
	w.Uvarint(uint64(f.PullOrder))
	w.Bool(f.Watched)
	w.Bool(f.IgnorePermissions)
	return w.Bytes()
}

func decodeFolder(b []byte) (*model.Folder, error) {
	r := wire.NewReader(b)
	f := &model.Folder{}
	var err error
	if f.ID, err = r.String(); err != nil {
		return nil, err
	}
	if f.Label, err = r.String(); err != nil {
		return nil, err
	}
	if f.Path, err = r.String(); err != nil {
		return nil, err
	}
	t, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	f.Type = model.FolderType(t)
	interval, err := r.Int64()
	if err != nil {
		return nil, err
	}
	f.RescanInterval = time.Duration(interval)
	po, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	f.PullOrder = model.PullOrder(po)
	if f.Watched, err = r.Bool(); err != nil {
		return nil, err
	}
	if f.IgnorePermissions, err = r.Bool(); err != nil {
		return nil, err
	}
	return f, nil
}

func encodeFolderInfoMetaRaw(folderID, deviceID string, indexID, maxSequence uint64) []byte {
	w := wire.NewWriter()
	w.String(folderID)
	w.String(deviceID)
	w.Uvarint(indexID)
	w.Uvarint(maxSequence)
	return w.Bytes()
}

// folderInfoMeta is the decoded form of a persisted FolderInfo row; it
// carries the (folder, device) pair from the value rather than the key so
// the loader never has to re-parse a composite key.
type folderInfoMeta struct {
	FolderID    string
	DeviceID    string
	IndexID     uint64
	MaxSequence uint64
}

func decodeFolderInfoMeta(b []byte) (folderInfoMeta, error) {
	r := wire.NewReader(b)
	var m folderInfoMeta
	var err error
	if m.FolderID, err = r.String(); err != nil {
		return m, err
	}
	if m.DeviceID, err = r.String(); err != nil {
		return m, err
	}
	if m.IndexID, err = r.Uvarint(); err != nil {
		return m, err
	}
	if m.MaxSequence, err = r.Uvarint(); err != nil {
		return m, err
	}
	return m, nil
}

func encodeBlockInfo(b *model.BlockInfo) []byte {
	w := wire.NewWriter()
	w.RawBytes(b.Hash[:])
	w.Int32(b.Size)
	w.Uvarint(uint64(b.WeakHash))
	return w.Bytes()
}

func decodeBlockInfo(b []byte) (*model.BlockInfo, error) {
	r := wire.NewReader(b)
	raw, err := r.RawBytes()
	if err != nil {
		return nil, err
	}
	bi := &model.BlockInfo{}
	copy(bi.Hash[:], raw)
	if bi.Size, err = r.Int32(); err != nil {
		return nil, err
	}
	wh, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	bi.WeakHash = uint32(wh)
	return bi, nil
}

// encodeFileInfoRow repeats folderID/deviceID inside the value so the
// loader can build a LoadFileInfoEntry without parsing the composite key.
func encodeFileInfoRow(folderID, deviceID string, f *model.FileInfo) []byte {
	w := wire.NewWriter()
	w.String(folderID)
	w.String(deviceID)
	wire.WriteFileEntry(w, wire.FromFileInfo(f))
	return w.Bytes()
}

func encodeUnknownFolder(u *model.UnknownFolder) []byte {
	w := wire.NewWriter()
	w.String(u.FolderID)
	w.String(u.DeviceID)
	w.String(u.Label)
	return w.Bytes()
}

func decodeUnknownFolder(b []byte) (*model.UnknownFolder, error) {
	r := wire.NewReader(b)
	u := &model.UnknownFolder{}
	var err error
	if u.FolderID, err = r.String(); err != nil {
		return nil, err
	}
	if u.DeviceID, err = r.String(); err != nil {
		return nil, err
	}
	if u.Label, err = r.String(); err != nil {
		return nil, err
	}
	return u, nil
}

func decodeFileInfoRow(b []byte) (folderID, deviceID string, f *model.FileInfo, err error) {
	r := wire.NewReader(b)
	if folderID, err = r.String(); err != nil {
		return "", "", nil, err
	}
	if deviceID, err = r.String(); err != nil {
		return "", "", nil, err
	}
	entry, err := wire.ReadFileEntry(r)
	if err != nil {
		return "", "", nil, err
	}
	return folderID, deviceID, entry.ToFileInfo(), nil
}
