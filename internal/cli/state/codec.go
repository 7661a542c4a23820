package state

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Blob layout: magic | mode | payload.
// mode 0: payload is JSON. mode 1: payload is salt | nonce | AES-GCM(JSON).
var blobMagic = []byte("OJS\x01")

const (
	modePlain  byte = 0
	modeSealed byte = 1
	saltSize        = 16
	keySize         = 32
)

var ErrCorruptBlob = errors.New("corrupt session blob")

// Codec turns a Session into the binary cache blob and back.
// With a passphrase the blob is sealed with a scrypt-derived AES-GCM key.
type Codec struct {
	passphrase []byte
}

func NewCodec(passphrase string) Codec {
	if passphrase == "" {
		return Codec{}
	}
	return Codec{passphrase: []byte(passphrase)}
}

func (c Codec) Encode(s Session) ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session failed: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(blobMagic)
	if len(c.passphrase) == 0 {
		buf.WriteByte(modePlain)
		buf.Write(payload)
		return buf.Bytes(), nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt failed: %w", err)
	}
	aead, err := c.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce failed: %w", err)
	}

	buf.WriteByte(modeSealed)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(aead.Seal(nil, nonce, payload, blobMagic))
	return buf.Bytes(), nil
}

func (c Codec) Decode(blob []byte) (*Session, error) {
	if len(blob) < len(blobMagic)+1 || !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, ErrCorruptBlob
	}
	mode := blob[len(blobMagic)]
	body := blob[len(blobMagic)+1:]

	var payload []byte
	switch mode {
	case modePlain:
		payload = body
	case modeSealed:
		if len(c.passphrase) == 0 {
			return nil, fmt.Errorf("%w: sealed blob without passphrase", ErrCorruptBlob)
		}
		if len(body) < saltSize {
			return nil, ErrCorruptBlob
		}
		aead, err := c.aead(body[:saltSize])
		if err != nil {
			return nil, err
		}
		rest := body[saltSize:]
		if len(rest) < aead.NonceSize() {
			return nil, ErrCorruptBlob
		}
		payload, err = aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], blobMagic)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
		}
	default:
		return nil, ErrCorruptBlob
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	return &s, nil
}

func (c Codec) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.passphrase, salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
