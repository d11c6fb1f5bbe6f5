package vectorindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"github.com/nik45114/kbcore/pkg/utils/safe"
)

// Blob layout, big endian:
//
//	magic   [4]byte "KBVX"
//	version uint32
//	crc32   uint32  IEEE checksum of payload
//	length  uint64  payload length
//	payload zstd(gob(snapshot))
const (
	formatVersion uint32 = 1
	headerSize           = 4 + 4 + 4 + 8
)

var magic = [4]byte{'K', 'B', 'V', 'X'}

type snapshot struct {
	Dimension int
	IDs       []string
	Vectors   [][]float32
}

// Persist writes the live entries to the configured path. Nothing is written
// when no path is configured. The file is replaced atomically.
func (x *Index) Persist(ctx context.Context) error {
	if x.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return goerr.Wrap(err, "persist cancelled")
	}

	x.persistMu.Lock()
	defer x.persistMu.Unlock()

	snap, gen := x.snapshot()
	blob, err := encode(snap)
	if err != nil {
		return goerr.Wrap(err, "failed to encode index", goerr.V("path", x.path))
	}

	if err := writeAtomic(ctx, x.path, blob); err != nil {
		return goerr.Wrap(err, "failed to write index", goerr.V("path", x.path))
	}

	x.mu.Lock()
	if gen > x.savedGen {
		x.savedGen = gen
	}
	x.mu.Unlock()

	logging.From(ctx).Debug("vector index persisted",
		"path", x.path,
		"entries", len(snap.IDs),
		"bytes", len(blob),
	)
	return nil
}

// Load replaces the in-memory entries with the persisted blob. A missing file
// yields an empty index. Any integrity failure returns model.ErrIndexCorruption
// and leaves the in-memory state untouched.
func (x *Index) Load(ctx context.Context) error {
	if x.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return goerr.Wrap(err, "load cancelled")
	}

	x.persistMu.Lock()
	defer x.persistMu.Unlock()

	blob, err := os.ReadFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		x.restore(&snapshot{Dimension: x.dimension})
		logging.From(ctx).Info("vector index file not found, starting empty", "path", x.path)
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read index", goerr.V("path", x.path))
	}

	snap, err := decode(blob)
	if err != nil {
		return goerr.Wrap(err, "failed to decode index", goerr.V("path", x.path))
	}
	if err := x.verify(snap); err != nil {
		return goerr.Wrap(err, "index payload is inconsistent", goerr.V("path", x.path))
	}

	x.restore(snap)
	logging.From(ctx).Info("vector index loaded", "path", x.path, "entries", len(snap.IDs))
	return nil
}

func (x *Index) snapshot() (*snapshot, uint64) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	snap := &snapshot{
		Dimension: x.dimension,
		IDs:       make([]string, 0, len(x.positions)),
		Vectors:   make([][]float32, 0, len(x.positions)),
	}
	for pos, id := range x.ids {
		if id == "" {
			continue
		}
		snap.IDs = append(snap.IDs, id.String())
		snap.Vectors = append(snap.Vectors, x.vectors[pos])
	}
	return snap, x.gen
}

func (x *Index) verify(snap *snapshot) error {
	if snap.Dimension != x.dimension {
		return goerr.Wrap(model.ErrIndexCorruption, "dimension mismatch",
			goerr.V("expected", x.dimension), goerr.V("actual", snap.Dimension))
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return goerr.Wrap(model.ErrIndexCorruption, "id and vector counts differ",
			goerr.V("ids", len(snap.IDs)), goerr.V("vectors", len(snap.Vectors)))
	}

	seen := make(map[string]struct{}, len(snap.IDs))
	for i, id := range snap.IDs {
		if id == "" {
			return goerr.Wrap(model.ErrIndexCorruption, "empty id", goerr.V("position", i))
		}
		if _, dup := seen[id]; dup {
			return goerr.Wrap(model.ErrIndexCorruption, "duplicate id", goerr.V(model.KnowledgeIDKey, id))
		}
		seen[id] = struct{}{}
		if len(snap.Vectors[i]) != x.dimension {
			return goerr.Wrap(model.ErrIndexCorruption, "vector length mismatch",
				goerr.V(model.KnowledgeIDKey, id), goerr.V("length", len(snap.Vectors[i])))
		}
	}
	return nil
}

func (x *Index) restore(snap *snapshot) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.ids = make([]model.KnowledgeID, len(snap.IDs))
	x.vectors = make([][]float32, len(snap.IDs))
	x.positions = make(map[model.KnowledgeID]int, len(snap.IDs))
	for i, id := range snap.IDs {
		kid := model.KnowledgeID(id)
		x.ids[i] = kid
		x.vectors[i] = snap.Vectors[i]
		x.positions[kid] = i
	}
	x.tombs = 0
	x.gen++
	x.savedGen = x.gen
}

func encode(snap *snapshot) ([]byte, error) {
	var payload bytes.Buffer
	zw, err := zstd.NewWriter(&payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create zstd writer")
	}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		_ = zw.Close()
		return nil, goerr.Wrap(err, "failed to gob encode snapshot")
	}
	if err := zw.Close(); err != nil {
		return nil, goerr.Wrap(err, "failed to flush zstd writer")
	}

	body := payload.Bytes()
	blob := make([]byte, headerSize, headerSize+len(body))
	copy(blob[0:4], magic[:])
	binary.BigEndian.PutUint32(blob[4:8], formatVersion)
	binary.BigEndian.PutUint32(blob[8:12], crc32.ChecksumIEEE(body))
	binary.BigEndian.PutUint64(blob[12:20], uint64(len(body)))
	return append(blob, body...), nil
}

func decode(blob []byte) (*snapshot, error) {
	if len(blob) < headerSize {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "blob shorter than header", goerr.V("size", len(blob)))
	}
	if !bytes.Equal(blob[0:4], magic[:]) {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "bad magic")
	}
	if v := binary.BigEndian.Uint32(blob[4:8]); v != formatVersion {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "unsupported format version", goerr.V("version", v))
	}

	sum := binary.BigEndian.Uint32(blob[8:12])
	length := binary.BigEndian.Uint64(blob[12:20])
	body := blob[headerSize:]
	if uint64(len(body)) != length {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "payload length mismatch",
			goerr.V("expected", length), goerr.V("actual", len(body)))
	}
	if crc32.ChecksumIEEE(body) != sum {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "checksum mismatch")
	}

	zr, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "failed to open zstd payload", goerr.V("error", err.Error()))
	}
	defer zr.Close()

	var snap snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, goerr.Wrap(model.ErrIndexCorruption, "failed to decode payload", goerr.V("error", err.Error()))
	}
	return &snap, nil
}

// writeAtomic writes data to a temp file in the target directory, syncs it,
// and renames it over path.
func writeAtomic(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create index directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		safe.Close(ctx, tmp)
		return goerr.Wrap(err, "failed to write temp file", goerr.V("tmp", tmpName))
	}
	if err := tmp.Sync(); err != nil {
		safe.Close(ctx, tmp)
		return goerr.Wrap(err, "failed to sync temp file", goerr.V("tmp", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp file", goerr.V("tmp", tmpName))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return goerr.Wrap(err, "failed to rename temp file", goerr.V("tmp", tmpName), goerr.V("path", path))
	}
	committed = true
	return nil
}
