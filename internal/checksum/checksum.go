package checksum

import (
	"encoding/base64"
	"fmt"
	"hash"
	"hash/crc64"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

const bufferSize = 64 * 1024 // 64KB buffer

// Algorithm selects how file contents are digested.
type Algorithm string

const (
	// AlgorithmCRC64NVME is the fast, non-cryptographic default.
	AlgorithmCRC64NVME Algorithm = "crc64nvme"
	// AlgorithmBLAKE2b256 is used in secure mode.
	AlgorithmBLAKE2b256 Algorithm = "blake2b-256"
)

// CRC64NVME polynomial, the same one S3 uses for its CRC64NVME checksums
var crc64NVMETable = crc64.MakeTable(0x9a6c9329ac4bc9b5)

// ForMode returns the algorithm for the secure flag.
func ForMode(secure bool) Algorithm {
	if secure {
		return AlgorithmBLAKE2b256
	}
	return AlgorithmCRC64NVME
}

// Hasher digests files on a filesystem with one algorithm.
type Hasher struct {
	fs        afero.Fs
	algorithm Algorithm
}

// New creates a Hasher. An unknown algorithm falls back to CRC64NVME.
func New(fs afero.Fs, algorithm Algorithm) *Hasher {
	if algorithm != AlgorithmBLAKE2b256 {
		algorithm = AlgorithmCRC64NVME
	}
	return &Hasher{fs: fs, algorithm: algorithm}
}

// Algorithm returns the algorithm in use.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *Hasher) newHash() hash.Hash {
	if h.algorithm == AlgorithmBLAKE2b256 {
		// New256 only fails for keys longer than 64 bytes.
		b2, _ := blake2b.New256(nil)
		return b2
	}
	return crc64.New(crc64NVMETable)
}

// File calculates the checksum of the file at path and returns it base64
// encoded.
func (h *Hasher) File(path string) (string, error) {
	file, err := h.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return h.Reader(file)
}

// Reader calculates the checksum of everything r yields, reading in fixed
// size chunks.
func (h *Hasher) Reader(r io.Reader) (string, error) {
	hash := h.newHash()
	buffer := make([]byte, bufferSize)

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, err := hash.Write(buffer[:n]); err != nil {
				return "", fmt.Errorf("write to hash: %w", err)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}

// TeeReaderWithChecksum calculates a checksum while the data is read
type TeeReaderWithChecksum struct {
	reader   io.Reader
	hash     hash.Hash
	checksum string
	done     bool
}

// NewTeeReader wraps r so that the checksum of the streamed bytes is
// available once r is exhausted.
func (h *Hasher) NewTeeReader(r io.Reader) *TeeReaderWithChecksum {
	return &TeeReaderWithChecksum{
		reader: r,
		hash:   h.newHash(),
	}
}

// Read implements io.Reader
func (t *TeeReaderWithChecksum) Read(p []byte) (n int, err error) {
	n, err = t.reader.Read(p)
	if n > 0 {
		if _, werr := t.hash.Write(p[:n]); werr != nil {
			return n, werr
		}
	}
	if err == io.EOF {
		t.done = true
		t.checksum = base64.StdEncoding.EncodeToString(t.hash.Sum(nil))
	}
	return n, err
}

// Checksum returns the calculated checksum (only valid after EOF)
func (t *TeeReaderWithChecksum) Checksum() (string, error) {
	if !t.done {
		return "", fmt.Errorf("checksum not yet calculated (read not complete)")
	}
	return t.checksum, nil
}

// CompareChecksums compares two base64 encoded checksums. Empty checksums
// never match.
func CompareChecksums(checksum1, checksum2 string) bool {
	return checksum1 != "" && checksum1 == checksum2
}
