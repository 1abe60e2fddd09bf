package vault

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"dlfi/internal/types"
)

// StreamChunkSize bounds how much plaintext is buffered in memory at
// once during blob encryption/decryption.
const StreamChunkSize = 64 * 1024

const (
	headerVersion  = 1
	dekSize        = 32 // chacha20poly1305.KeySize
	wrapNonceSize  = chacha20poly1305.NonceSizeX
	bodyNonceSize  = chacha20poly1305.NonceSizeX
	wrapCipherSize = dekSize + chacha20poly1305.Overhead
	// HeaderSize is the fixed on-disk size of {version, body nonce, wrap nonce, wrapped_dek+tag}.
	HeaderSize = 1 + bodyNonceSize + wrapNonceSize + wrapCipherSize
)

// EncryptBlob writes a DL-FI ciphertext container to w: a fixed-size
// header carrying a fresh per-blob DEK wrapped by the vault's master
// key, followed by the plaintext read from r, AEAD-sealed in
// StreamChunkSize chunks so neither side ever holds a whole file in
// memory.
func (v *Vault) EncryptBlob(w io.Writer, r io.Reader) error {
	dek := make([]byte, dekSize)
	if _, err := rand.Read(dek); err != nil {
		return fmt.Errorf("generate dek: %w", err)
	}
	defer zero(dek)

	wrapNonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(wrapNonce); err != nil {
		return fmt.Errorf("generate wrap nonce: %w", err)
	}
	wrapAEAD, err := chacha20poly1305.NewX(v.mk[:])
	if err != nil {
		return fmt.Errorf("wrap cipher: %w", err)
	}
	wrappedDEK := wrapAEAD.Seal(nil, wrapNonce, dek, []byte(dekWrapAAD))

	bodyNonce := make([]byte, bodyNonceSize)
	if _, err := rand.Read(bodyNonce); err != nil {
		return fmt.Errorf("generate body nonce: %w", err)
	}

	header := make([]byte, 0, HeaderSize)
	header = append(header, headerVersion)
	header = append(header, bodyNonce...)
	header = append(header, wrapNonce...)
	header = append(header, wrappedDEK...)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bodyAEAD, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return fmt.Errorf("body cipher: %w", err)
	}

	buf := make([]byte, StreamChunkSize)
	var index uint64
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			nonce := chunkNonce(bodyNonce, index)
			sealed := bodyAEAD.Seal(nil, nonce, buf[:n], chunkAAD(index))
			if err := writeChunk(w, sealed); err != nil {
				return err
			}
			index++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read plaintext: %w", readErr)
		}
	}
	return nil
}

// DecryptBlob reverses EncryptBlob, failing DecryptionFailed on a
// tampered chunk or a header that does not unwrap under this vault's
// master key.
func (v *Vault) DecryptBlob(w io.Writer, r io.Reader) error {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: short header: %v", types.ErrDecryptionFailed, err)
	}
	if header[0] != headerVersion {
		return fmt.Errorf("%w: unknown header version %d", types.ErrDecryptionFailed, header[0])
	}
	off := 1
	bodyNonce := header[off : off+bodyNonceSize]
	off += bodyNonceSize
	wrapNonce := header[off : off+wrapNonceSize]
	off += wrapNonceSize
	wrappedDEK := header[off : off+wrapCipherSize]

	wrapAEAD, err := chacha20poly1305.NewX(v.mk[:])
	if err != nil {
		return fmt.Errorf("wrap cipher: %w", err)
	}
	dek, err := wrapAEAD.Open(nil, wrapNonce, wrappedDEK, []byte(dekWrapAAD))
	if err != nil {
		return fmt.Errorf("%w: cannot unwrap data key", types.ErrDecryptionFailed)
	}
	defer zero(dek)

	bodyAEAD, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return fmt.Errorf("body cipher: %w", err)
	}

	var index uint64
	for {
		sealed, err := readChunk(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read ciphertext chunk: %w", err)
		}
		nonce := chunkNonce(bodyNonce, index)
		plain, err := bodyAEAD.Open(nil, nonce, sealed, chunkAAD(index))
		if err != nil {
			return fmt.Errorf("%w: chunk %d failed authentication", types.ErrDecryptionFailed, index)
		}
		if _, err := w.Write(plain); err != nil {
			return fmt.Errorf("write plaintext: %w", err)
		}
		index++
	}
	return nil
}

func chunkNonce(base []byte, index uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, index)
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-8+i] ^= counter[i]
	}
	return nonce
}

func chunkAAD(index uint64) []byte {
	aad := make([]byte, len(blobBodyAAD)+8)
	copy(aad, blobBodyAAD)
	binary.BigEndian.PutUint64(aad[len(blobBodyAAD):], index)
	return aad
}

func writeChunk(w io.Writer, sealed []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(sealed)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("write chunk length: %w", err)
	}
	if _, err := w.Write(sealed); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	return nil
}

func readChunk(r io.Reader) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: truncated chunk length", types.ErrDecryptionFailed)
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated chunk body", types.ErrDecryptionFailed)
	}
	return buf, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
