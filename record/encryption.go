// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// EncryptionDescriptorSize is the encoded size of an Encryption descriptor.
const EncryptionDescriptorSize = 96

const (
	// MaxKADLength bounds the size of each key-associated data field.
	MaxKADLength = 32
	// NonceSize is the size of the per-block nonce.
	NonceSize = 12
	// KeyIDSize is the size of a key identifier.
	KeyIDSize = 8
)

// Encryption describes how a block's payload was encrypted. The key itself is
// never stored; KeyID identifies it so that a read with the wrong key can be
// refused before decryption is attempted.
//
// The encoded layout (little-endian) is:
//
//	[0:4)   key length
//	[4:12)  key id
//	[12:16) unauthenticated key-associated data length
//	[16:20) authenticated key-associated data length
//	[20:32) nonce
//	[32:64) unauthenticated key-associated data
//	[64:96) authenticated key-associated data
type Encryption struct {
	KeyLength uint32
	KeyID     [KeyIDSize]byte
	Nonce     [NonceSize]byte
	// UKAD and AKAD are the unauthenticated and authenticated key-associated
	// data supplied by the initiator along with the key.
	UKAD []byte
	AKAD []byte
}

func (e *Encryption) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.KeyLength)
	copy(buf[4:12], e.KeyID[:])
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(e.UKAD)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(e.AKAD)))
	copy(buf[20:32], e.Nonce[:])
	copy(buf[32:64], e.UKAD)
	copy(buf[64:96], e.AKAD)
}

func decodeEncryption(buf []byte) (*Encryption, error) {
	e := &Encryption{KeyLength: binary.LittleEndian.Uint32(buf[0:4])}
	if e.KeyLength == 0 {
		return nil, errors.New("encryption descriptor has no key")
	}
	ukadLen := binary.LittleEndian.Uint32(buf[12:16])
	akadLen := binary.LittleEndian.Uint32(buf[16:20])
	if ukadLen > MaxKADLength || akadLen > MaxKADLength {
		return nil, errors.Newf("encryption descriptor key-associated data lengths %d/%d exceed %d",
			ukadLen, akadLen, MaxKADLength)
	}
	copy(e.KeyID[:], buf[4:12])
	copy(e.Nonce[:], buf[20:32])
	if ukadLen > 0 {
		e.UKAD = append([]byte(nil), buf[32:32+ukadLen]...)
	}
	if akadLen > 0 {
		e.AKAD = append([]byte(nil), buf[64:64+akadLen]...)
	}
	return e, nil
}
