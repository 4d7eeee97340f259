package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"

	"modelscanner/internal/result"
	"modelscanner/internal/safetensors"
)

const (
	autoV1Offset  = 0x100000
	autoV1Window  = 0x10000
	autoV1MinSize = 0x100000 * 2
	autoV1Length  = 8
	autoV2Length  = 10
)

// Digest computes every fingerprint for path without modifying it. AutoV1 is
// omitted for files under 2 MiB and AutoV3 for anything that is not a
// readable safetensors file.
func Digest(ctx context.Context, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var dataOffset int64 = -1
	if safetensors.Is(path) {
		if header, err := safetensors.ReadHeader(f); err == nil && header.DataOffset() <= info.Size() {
			dataOffset = header.DataOffset()
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind %s: %w", path, err)
		}
	}

	sha := sha256.New()
	b3 := blake3.New(32, nil)
	crc := crc32.NewIEEE()
	writers := []io.Writer{sha, b3, crc}
	var tail *skipWriter
	if dataOffset >= 0 {
		tail = &skipWriter{skip: dataOffset, h: sha256.New()}
		writers = append(writers, tail)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), &contextReader{ctx: ctx, r: f}); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	hashes := map[string]string{
		result.HashSHA256: upperHex(sha.Sum(nil)),
		result.HashBlake3: upperHex(b3.Sum(nil)),
		result.HashCRC32:  crcHex(crc.Sum32()),
	}
	hashes[result.HashAutoV2] = hashes[result.HashSHA256][:autoV2Length]
	if tail != nil {
		hashes[result.HashAutoV3] = upperHex(tail.h.Sum(nil))
	}

	if info.Size() >= autoV1MinSize {
		window := make([]byte, autoV1Window)
		if _, err := f.ReadAt(window, autoV1Offset); err != nil {
			return nil, fmt.Errorf("read autov1 window: %w", err)
		}
		sum := sha256.Sum256(window)
		hashes[result.HashAutoV1] = upperHex(sum[:])[:autoV1Length]
	}

	return hashes, nil
}

// tensorDigest is the SHA-256 of everything after offset, the value
// sshs_model_hash is expected to hold.
func tensorDigest(ctx context.Context, path string, offset int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, &contextReader{ctx: ctx, r: f}); err != nil {
		return "", err
	}
	return upperHex(h.Sum(nil)), nil
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// crcHex renders the checksum in little-endian byte order, matching the
// fingerprints already stored for existing models.
func crcHex(sum uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], sum)
	return upperHex(b[:])
}

// skipWriter feeds h everything after the first skip bytes written to it.
type skipWriter struct {
	skip int64
	h    hash.Hash
}

func (w *skipWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.skip > 0 {
		if int64(len(p)) <= w.skip {
			w.skip -= int64(len(p))
			return n, nil
		}
		p = p[w.skip:]
		w.skip = 0
	}
	w.h.Write(p)
	return n, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
