package wire

import "github.com/svmk2808/syncspirit/internal/errs"

// Message is implemented by every BEP payload type; Marshal/Unmarshal pair
// each with the Header.Type that identifies it on the wire.
type Message interface {
	messageType() MessageType
	Marshal() []byte
}

// Hello is the very first message on a connection, exchanged before TLS
// peer verification is even consulted for anything beyond the
// certificate itself (spec.md §2 "HANDSHAKING").
type Hello struct {
	DeviceName    string
	ClientName    string
	ClientVersion string
}

func (Hello) messageType() MessageType { return MsgHello }

func (m Hello) Marshal() []byte {
	w := NewWriter()
	w.String(m.DeviceName)
	w.String(m.ClientName)
	w.String(m.ClientVersion)
	return w.Bytes()
}

func UnmarshalHello(b []byte) (Hello, error) {
	r := NewReader(b)
	var m Hello
	var err error
	if m.DeviceName, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "hello.device_name", err)
	}
	if m.ClientName, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "hello.client_name", err)
	}
	if m.ClientVersion, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "hello.client_version", err)
	}
	return m, nil
}

// ClusterConfigDevice is one device entry within a folder's device list.
type ClusterConfigDevice struct {
	ID          string
	Name        string
	Addresses   []string
	Compression int32
	CertName    string
	MaxSequence uint64
	IndexID     uint64
	Introducer  bool
}

// ClusterConfigFolder is one folder entry of a ClusterConfig message.
type ClusterConfigFolder struct {
	ID                string
	Label             string
	ReadOnly          bool
	IgnorePermissions bool
	Devices           []ClusterConfigDevice
}

// ClusterConfig is exchanged once immediately after Hello and again
// whenever folder sharing changes (spec.md §4.4).
type ClusterConfig struct {
	Folders []ClusterConfigFolder
}

func (ClusterConfig) messageType() MessageType { return MsgClusterConfig }

func (m ClusterConfig) Marshal() []byte {
	w := NewWriter()
	w.Uvarint(uint64(len(m.Folders)))
	for _, f := range m.Folders {
		w.String(f.ID)
		w.String(f.Label)
		w.Bool(f.ReadOnly)
		w.Bool(f.IgnorePermissions)
		w.Uvarint(uint64(len(f.Devices)))
		for _, d := range f.Devices {
			w.String(d.ID)
			w.String(d.Name)
			w.Uvarint(uint64(len(d.Addresses)))
			for _, a := range d.Addresses {
				w.String(a)
			}
			w.Int32(d.Compression)
			w.String(d.CertName)
			w.Uvarint(d.MaxSequence)
			w.Uvarint(d.IndexID)
			w.Bool(d.Introducer)
		}
	}
	return w.Bytes()
}

func UnmarshalClusterConfig(b []byte) (ClusterConfig, error) {
	r := NewReader(b)
	var m ClusterConfig
	nf, err := r.Uvarint()
	if err != nil {
		return m, errs.New(errs.KindDecodeError, "cluster_config.folders", err)
	}
	for i := uint64(0); i < nf; i++ {
		var f ClusterConfigFolder
		if f.ID, err = r.String(); err != nil {
			return m, errs.New(errs.KindDecodeError, "cluster_config.folder.id", err)
		}
		if f.Label, err = r.String(); err != nil {
			return m, errs.New(errs.KindDecodeError, "cluster_config.folder.label", err)
		}
		if f.ReadOnly, err = r.Bool(); err != nil {
			return m, errs.New(errs.KindDecodeError, "cluster_config.folder.read_only", err)
		}
		if f.IgnorePermissions, err = r.Bool(); err != nil {
			return m, errs.New(errs.KindDecodeError, "cluster_config.folder.ignore_permissions", err)
		}
		nd, err := r.Uvarint()
		if err != nil {
			return m, errs.New(errs.KindDecodeError, "cluster_config.folder.devices", err)
		}
		for j := uint64(0); j < nd; j++ {
			var d ClusterConfigDevice
			if d.ID, err = r.String(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.id", err)
			}
			if d.Name, err = r.String(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.name", err)
			}
			na, err := r.Uvarint()
			if err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.addresses", err)
			}
			for k := uint64(0); k < na; k++ {
				addr, err := r.String()
				if err != nil {
					return m, errs.New(errs.KindDecodeError, "cluster_config.device.address", err)
				}
				d.Addresses = append(d.Addresses, addr)
			}
			if d.Compression, err = r.Int32(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.compression", err)
			}
			if d.CertName, err = r.String(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.cert_name", err)
			}
			if d.MaxSequence, err = r.Uvarint(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.max_sequence", err)
			}
			if d.IndexID, err = r.Uvarint(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.index_id", err)
			}
			if d.Introducer, err = r.Bool(); err != nil {
				return m, errs.New(errs.KindDecodeError, "cluster_config.device.introducer", err)
			}
			f.Devices = append(f.Devices, d)
		}
		m.Folders = append(m.Folders, f)
	}
	return m, nil
}

// Index is the full file list for a folder, sent once after ClusterConfig
// exchange per shared folder (spec.md §4.4).
type Index struct {
	Folder string
	Files  []FileEntry
}

func (Index) messageType() MessageType { return MsgIndex }

func (m Index) Marshal() []byte { return marshalIndexLike(m.Folder, m.Files) }

func UnmarshalIndex(b []byte) (Index, error) {
	folder, files, err := unmarshalIndexLike(b)
	return Index{Folder: folder, Files: files}, err
}

// IndexUpdate carries an incremental change to a folder already indexed.
type IndexUpdate struct {
	Folder string
	Files  []FileEntry
}

func (IndexUpdate) messageType() MessageType { return MsgIndexUpdate }

func (m IndexUpdate) Marshal() []byte { return marshalIndexLike(m.Folder, m.Files) }

func UnmarshalIndexUpdate(b []byte) (IndexUpdate, error) {
	folder, files, err := unmarshalIndexLike(b)
	return IndexUpdate{Folder: folder, Files: files}, err
}

func marshalIndexLike(folder string, files []FileEntry) []byte {
	w := NewWriter()
	w.String(folder)
	w.Uvarint(uint64(len(files)))
	for _, f := range files {
		WriteFileEntry(w, f)
	}
	return w.Bytes()
}

func unmarshalIndexLike(b []byte) (string, []FileEntry, error) {
	r := NewReader(b)
	folder, err := r.String()
	if err != nil {
		return "", nil, errs.New(errs.KindDecodeError, "index.folder", err)
	}
	n, err := r.Uvarint()
	if err != nil {
		return "", nil, errs.New(errs.KindDecodeError, "index.files", err)
	}
	files := make([]FileEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		f, err := ReadFileEntry(r)
		if err != nil {
			return "", nil, errs.New(errs.KindDecodeError, "index.file", err)
		}
		files = append(files, f)
	}
	return folder, files, nil
}

// Request asks the peer owning folder for one block's bytes (spec.md §4.5).
type Request struct {
	ID            int32
	Folder        string
	Name          string
	Offset        int64
	Size          int32
	Hash          []byte
	FromTemporary bool
}

func (Request) messageType() MessageType { return MsgRequest }

func (m Request) Marshal() []byte {
	w := NewWriter()
	w.Int32(m.ID)
	w.String(m.Folder)
	w.String(m.Name)
	w.Int64(m.Offset)
	w.Int32(m.Size)
	w.RawBytes(m.Hash)
	w.Bool(m.FromTemporary)
	return w.Bytes()
}

func UnmarshalRequest(b []byte) (Request, error) {
	r := NewReader(b)
	var m Request
	var err error
	if m.ID, err = r.Int32(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.id", err)
	}
	if m.Folder, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.folder", err)
	}
	if m.Name, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.name", err)
	}
	if m.Offset, err = r.Int64(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.offset", err)
	}
	if m.Size, err = r.Int32(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.size", err)
	}
	if m.Hash, err = r.RawBytes(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.hash", err)
	}
	if m.FromTemporary, err = r.Bool(); err != nil {
		return m, errs.New(errs.KindDecodeError, "request.from_temporary", err)
	}
	return m, nil
}

// ResponseCode mirrors BEP's small "why this request failed" enum.
type ResponseCode int32

const (
	CodeNoError ResponseCode = iota
	CodeInvalid
	CodeNoSuchFile
	CodeInvalidFile
)

// Response answers a Request with either data or an error code.
type Response struct {
	ID   int32
	Data []byte
	Code ResponseCode
}

func (Response) messageType() MessageType { return MsgResponse }

func (m Response) Marshal() []byte {
	w := NewWriter()
	w.Int32(m.ID)
	w.RawBytes(m.Data)
	w.Int32(int32(m.Code))
	return w.Bytes()
}

func UnmarshalResponse(b []byte) (Response, error) {
	r := NewReader(b)
	var m Response
	var err error
	if m.ID, err = r.Int32(); err != nil {
		return m, errs.New(errs.KindDecodeError, "response.id", err)
	}
	if m.Data, err = r.RawBytes(); err != nil {
		return m, errs.New(errs.KindDecodeError, "response.data", err)
	}
	code, err := r.Int32()
	if err != nil {
		return m, errs.New(errs.KindDecodeError, "response.code", err)
	}
	m.Code = ResponseCode(code)
	return m, nil
}

// FileDownloadProgress is one file's partially-received block indices.
type FileDownloadProgress struct {
	Name    string
	Indices []uint32
}

// DownloadProgress lets peers advertise partially-downloaded files so a
// requester can prefer a peer that already has the blocks it needs
// in-flight (spec.md §7).
type DownloadProgress struct {
	Folder  string
	Updates []FileDownloadProgress
}

func (DownloadProgress) messageType() MessageType { return MsgDownloadProgress }

func (m DownloadProgress) Marshal() []byte {
	w := NewWriter()
	w.String(m.Folder)
	w.Uvarint(uint64(len(m.Updates)))
	for _, u := range m.Updates {
		w.String(u.Name)
		w.Uvarint(uint64(len(u.Indices)))
		for _, idx := range u.Indices {
			w.Uvarint(uint64(idx))
		}
	}
	return w.Bytes()
}

func UnmarshalDownloadProgress(b []byte) (DownloadProgress, error) {
	r := NewReader(b)
	var m DownloadProgress
	var err error
	if m.Folder, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "download_progress.folder", err)
	}
	n, err := r.Uvarint()
	if err != nil {
		return m, errs.New(errs.KindDecodeError, "download_progress.updates", err)
	}
	for i := uint64(0); i < n; i++ {
		var u FileDownloadProgress
		if u.Name, err = r.String(); err != nil {
			return m, errs.New(errs.KindDecodeError, "download_progress.name", err)
		}
		ni, err := r.Uvarint()
		if err != nil {
			return m, errs.New(errs.KindDecodeError, "download_progress.indices", err)
		}
		for j := uint64(0); j < ni; j++ {
			idx, err := r.Uvarint()
			if err != nil {
				return m, errs.New(errs.KindDecodeError, "download_progress.index", err)
			}
			u.Indices = append(u.Indices, uint32(idx))
		}
		m.Updates = append(m.Updates, u)
	}
	return m, nil
}

// Ping keeps an idle connection alive; it carries no payload.
type Ping struct{}

func (Ping) messageType() MessageType { return MsgPing }
func (Ping) Marshal() []byte          { return nil }
func UnmarshalPing([]byte) (Ping, error) { return Ping{}, nil }

// Close is sent immediately before a connection is torn down, giving the
// peer a reason rather than a bare disconnect (spec.md §2 "CLOSING").
type Close struct {
	Reason string
}

func (Close) messageType() MessageType { return MsgClose }

func (m Close) Marshal() []byte {
	w := NewWriter()
	w.String(m.Reason)
	return w.Bytes()
}

func UnmarshalClose(b []byte) (Close, error) {
	r := NewReader(b)
	var m Close
	var err error
	if m.Reason, err = r.String(); err != nil {
		return m, errs.New(errs.KindDecodeError, "close.reason", err)
	}
	return m, nil
}
