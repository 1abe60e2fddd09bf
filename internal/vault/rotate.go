package vault

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"dlfi/internal/types"
)

// NewMasterKey derives and persists a fresh master key for keyPath under
// newPassphrase, without touching any already-encrypted blob. Callers
// rotating an archive's passphrase must follow this with RewrapHeader
// over every blob's header (ciphertext bodies are never touched).
func NewMasterKey(keyPath, newPassphrase string) (*Vault, error) {
	return Initialize(keyPath, newPassphrase)
}

// RewrapHeader unwraps a blob ciphertext header's DEK under old's
// master key and rewraps it under new's, leaving the body nonce (and
// therefore every encrypted chunk) untouched. header must be exactly
// HeaderSize bytes, as produced by EncryptBlob.
func RewrapHeader(old, new *Vault, header []byte) ([]byte, error) {
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: malformed header length %d", types.ErrIntegrityCheckFailed, len(header))
	}
	if header[0] != headerVersion {
		return nil, fmt.Errorf("%w: unknown header version %d", types.ErrDecryptionFailed, header[0])
	}
	off := 1
	bodyNonce := header[off : off+bodyNonceSize]
	off += bodyNonceSize
	oldWrapNonce := header[off : off+wrapNonceSize]
	off += wrapNonceSize
	oldWrappedDEK := header[off : off+wrapCipherSize]

	oldAEAD, err := chacha20poly1305.NewX(old.mk[:])
	if err != nil {
		return nil, fmt.Errorf("old wrap cipher: %w", err)
	}
	dek, err := oldAEAD.Open(nil, oldWrapNonce, oldWrappedDEK, []byte(dekWrapAAD))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot unwrap data key under old master key", types.ErrDecryptionFailed)
	}
	defer zero(dek)

	newWrapNonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(newWrapNonce); err != nil {
		return nil, fmt.Errorf("generate rewrap nonce: %w", err)
	}
	newAEAD, err := chacha20poly1305.NewX(new.mk[:])
	if err != nil {
		return nil, fmt.Errorf("new wrap cipher: %w", err)
	}
	newWrappedDEK := newAEAD.Seal(nil, newWrapNonce, dek, []byte(dekWrapAAD))

	out := make([]byte, 0, HeaderSize)
	out = append(out, headerVersion)
	out = append(out, bodyNonce...)
	out = append(out, newWrapNonce...)
	out = append(out, newWrappedDEK...)
	return out, nil
}
