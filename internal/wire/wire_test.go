package wire

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/model"
)

func recvAs[T any](t *testing.T, c *Conn, want MessageType, unmarshal func([]byte) (T, error)) T {
	t.Helper()
	header, payload, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, want, header.Type)
	msg, err := unmarshal(payload)
	require.NoError(t, err)
	return msg
}

func TestHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionNever)

	sent := Hello{DeviceName: "alpha", ClientName: "syncspirit", ClientVersion: "v0.4.0"}
	require.NoError(t, c.Send(sent))

	got := recvAs(t, c, MsgHello, UnmarshalHello)
	require.Equal(t, sent, got)
}

func TestClusterConfigRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionNever)

	sent := ClusterConfig{Folders: []ClusterConfigFolder{{
		ID:    "f1",
		Label: "my-label",
		Devices: []ClusterConfigDevice{{
			ID:          "DEV-A",
			Name:        "a",
			Addresses:   []string{"tcp://10.0.0.1:22000"},
			MaxSequence: 42,
			IndexID:     0xDEADBEEF,
			Introducer:  true,
		}},
	}}}
	require.NoError(t, c.Send(sent))

	got := recvAs(t, c, MsgClusterConfig, UnmarshalClusterConfig)
	require.Equal(t, sent, got)
}

func TestIndexCarriesFileEntries(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionNever)

	h := model.Hash(sha256.Sum256([]byte("12345")))
	file := FromFileInfo(&model.FileInfo{
		Name:      "q.txt",
		Type:      model.FileRegular,
		Size:      5,
		BlockSize: 5,
		Sequence:  3,
		Version:   model.Version{{Device: 11, Value: 2}},
		Blocks:    []model.BlockRef{{Hash: h, Index: 0}},
	})
	require.NoError(t, c.Send(Index{Folder: "f1", Files: []FileEntry{file}}))

	got := recvAs(t, c, MsgIndex, UnmarshalIndex)
	require.Equal(t, "f1", got.Folder)
	require.Len(t, got.Files, 1)

	back := got.Files[0].ToFileInfo()
	require.Equal(t, "q.txt", back.Name)
	require.Equal(t, int64(5), back.Size)
	require.Equal(t, uint64(3), back.Sequence)
	require.Equal(t, model.Version{{Device: 11, Value: 2}}, back.Version)
	require.Equal(t, h, back.Blocks[0].Hash)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionNever)

	h := sha256.Sum256([]byte("12345"))
	req := Request{ID: 7, Folder: "f1", Name: "q.txt", Offset: 0, Size: 5, Hash: h[:]}
	require.NoError(t, c.Send(req))
	gotReq := recvAs(t, c, MsgRequest, UnmarshalRequest)
	require.Equal(t, req, gotReq)

	resp := Response{ID: 7, Data: []byte("12345"), Code: CodeNoError}
	require.NoError(t, c.Send(resp))
	gotResp := recvAs(t, c, MsgResponse, UnmarshalResponse)
	require.Equal(t, resp, gotResp)
}

func TestCompressionAlwaysRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionAlways)

	// Large enough to cross the compression threshold.
	data := bytes.Repeat([]byte("abcdefgh"), 100)
	require.NoError(t, c.Send(Response{ID: 1, Data: data}))

	header, payload, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, CompressionS2, header.Compression)
	got, err := UnmarshalResponse(payload)
	require.NoError(t, err)
	require.Equal(t, data, got.Data)
}

func TestMetadataPreferenceLeavesBlockDataAlone(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionMetadata)

	data := bytes.Repeat([]byte("abcdefgh"), 100)
	require.NoError(t, c.Send(Response{ID: 1, Data: data}))

	header, _, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, CompressionNone, header.Compression)
}

func TestTinyPayloadNeverCompressed(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, model.CompressionAlways)
	require.NoError(t, c.Send(Ping{}))
	header, _, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, CompressionNone, header.Compression)
}

func TestRecvRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter()
	w.Uvarint(uint64(MsgPing))
	w.Uvarint(0)
	hb := w.Bytes()
	buf.Write([]byte{0, byte(len(hb))})
	buf.Write(hb)
	// An absurd payload length must be rejected before allocation.
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	c := NewConn(&buf, model.CompressionNever)
	_, _, err := c.Recv()
	require.Error(t, err)
}
