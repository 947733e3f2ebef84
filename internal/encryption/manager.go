// Package encryption seals game-session server seeds at rest using
// envelope encryption: a per-seal data key protects the value, and the data
// key itself is wrapped by AWS KMS. Without KMS (local development) the
// data key is only base64-wrapped, which keeps the storage format identical
// but provides no secrecy.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedData is the persisted envelope.
type EncryptedData struct {
	EncryptedValue string    `json:"encrypted_value"`
	EncryptedDEK   string    `json:"encrypted_dek"`
	KeyID          string    `json:"key_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

type dataKey struct {
	plaintext  []byte
	ciphertext []byte
	keyID      string
}

// Manager performs envelope encryption. A nil KMS client selects the local
// development mode.
type Manager struct {
	kmsClient *kms.Client
	kmsKeyID  string
	keyCache  sync.Map // encrypted DEK -> plaintext DEK
}

func NewManager(kmsClient *kms.Client, kmsKeyID string) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		kmsKeyID:  kmsKeyID,
	}
}

func (m *Manager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if m.kmsClient == nil {
		return m.generateLocalKey()
	}

	input := &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.kmsKeyID),
		KeySpec: types.DataKeySpecAes256,
	}
	result, err := m.kmsClient.GenerateDataKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	return &dataKey{
		plaintext:  result.Plaintext,
		ciphertext: result.CiphertextBlob,
		keyID:      m.kmsKeyID,
	}, nil
}

func (m *Manager) generateLocalKey() (*dataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate local key: %w", err)
	}
	// dev mode: the "wrapped" key is just base64 of the key itself
	ciphertext := []byte(base64.StdEncoding.EncodeToString(key))
	return &dataKey{
		plaintext:  key,
		ciphertext: ciphertext,
		keyID:      uuid.New().String(),
	}, nil
}

// Seal encrypts a value under a fresh data key.
func (m *Manager) Seal(ctx context.Context, plaintext []byte) (*EncryptedData, error) {
	dk, err := m.generateDataKey(ctx)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(dk.plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	cacheKey := base64.StdEncoding.EncodeToString(dk.ciphertext)
	m.keyCache.Store(cacheKey, dk.plaintext)

	return &EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK:   cacheKey,
		KeyID:          dk.keyID,
		Version:        "v1",
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Open decrypts a sealed envelope, unwrapping the data key through KMS (or
// the local scheme) with a decrypted-DEK cache in front.
func (m *Manager) Open(ctx context.Context, data *EncryptedData) ([]byte, error) {
	if data == nil {
		return nil, ErrDecryptionFailed
	}

	var plaintextDEK []byte
	if cached, ok := m.keyCache.Load(data.EncryptedDEK); ok {
		plaintextDEK = cached.([]byte)
	} else {
		wrapped, err := base64.StdEncoding.DecodeString(data.EncryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		if m.kmsClient == nil {
			plaintextDEK, err = base64.StdEncoding.DecodeString(string(wrapped))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
			}
		} else {
			result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
				CiphertextBlob: wrapped,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt data key: %w", err)
			}
			plaintextDEK = result.Plaintext
		}
		m.keyCache.Store(data.EncryptedDEK, plaintextDEK)
	}

	sealed, err := base64.StdEncoding.DecodeString(data.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	block, err := aes.NewCipher(plaintextDEK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
