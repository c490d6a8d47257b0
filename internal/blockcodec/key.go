// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/record"
)

// KeySize is the size of a block encryption key (AES-256).
const KeySize = 32

// Key is a block encryption key together with the key-associated data the
// initiator supplied with it. Blocks are sealed with AES-256-GCM; the
// authenticated and unauthenticated key-associated data are both bound to
// the ciphertext as additional data.
type Key struct {
	id   [record.KeyIDSize]byte
	aead cipher.AEAD
	ukad []byte
	akad []byte
}

// NewKey returns a Key for the given 32-byte key.
func NewKey(key, ukad, akad []byte) (*Key, error) {
	if len(key) != KeySize {
		return nil, errors.Mark(errors.Newf("vtape: encryption key is %d bytes, want %d", len(key), KeySize),
			base.ErrEncryptionKey)
	}
	if len(ukad) > record.MaxKADLength || len(akad) > record.MaxKADLength {
		return nil, errors.Mark(errors.Newf("vtape: key-associated data longer than %d bytes", record.MaxKADLength),
			base.ErrEncryptionKey)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "vtape: creating block cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "vtape: creating block cipher")
	}
	k := &Key{
		aead: aead,
		ukad: append([]byte(nil), ukad...),
		akad: append([]byte(nil), akad...),
	}
	sum := sha256.Sum256(key)
	copy(k.id[:], sum[:record.KeyIDSize])
	return k, nil
}

// ID returns the identifier recorded in the blocks k encrypts.
func (k *Key) ID() [record.KeyIDSize]byte { return k.id }

// Overhead is the number of bytes sealing adds to a payload.
func (k *Key) Overhead() int { return k.aead.Overhead() }

func additionalData(ukad, akad []byte) []byte {
	ad := make([]byte, 0, len(ukad)+len(akad))
	return append(append(ad, ukad...), akad...)
}

// seal encrypts src, appending to dst, and returns the ciphertext and the
// descriptor to record with it.
func (k *Key) seal(dst, src []byte) ([]byte, *record.Encryption, error) {
	e := &record.Encryption{
		KeyLength: KeySize,
		KeyID:     k.id,
		UKAD:      k.ukad,
		AKAD:      k.akad,
	}
	if _, err := rand.Read(e.Nonce[:]); err != nil {
		return nil, nil, errors.Wrap(err, "vtape: generating nonce")
	}
	return k.aead.Seal(dst[:0], e.Nonce[:], src, additionalData(e.UKAD, e.AKAD)), e, nil
}

// open decrypts src, which was sealed with the descriptor e, appending to dst.
func (k *Key) open(dst, src []byte, e *record.Encryption) ([]byte, error) {
	if e.KeyID != k.id {
		return nil, errors.Mark(errors.Newf("vtape: block was encrypted with key %x, session key is %x", e.KeyID, k.id),
			base.ErrEncryptionKey)
	}
	out, err := k.aead.Open(dst[:0], e.Nonce[:], src, additionalData(e.UKAD, e.AKAD))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "vtape: authenticating encrypted block"), base.ErrChecksumMismatch)
	}
	return out, nil
}
