/*
Copyright 2024 The pgblock Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package keywrap wraps and unwraps a per-backup data encryption key
// under a user passphrase, so the cipher-block filter's AES key never
// has to be stored or typed directly. The wrapped key is an age
// scrypt-recipient envelope, independent of the data stream's own
// cipher-block filter chain.
package keywrap

import (
	"bytes"
	"crypto/rand"
	"io"

	"filippo.io/age"

	"github.com/pgblock/core/pkg/xerr"
)

// DataKeySize is the size in bytes of a generated cipher-block data
// key (AES-256).
const DataKeySize = 32

// GenerateDataKey returns a fresh random AES-256 key.
func GenerateDataKey() ([]byte, error) {
	key := make([]byte, DataKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to generate data key")
	}
	return key, nil
}

// Wrap encrypts key under passphrase, returning an age envelope that
// can be stored alongside a backup as its repository key file.
func Wrap(passphrase string, key []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to build passphrase recipient")
	}

	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to open key envelope for writing")
	}
	if _, err := w.Write(key); err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to write key into envelope")
	}
	if err := w.Close(); err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to seal key envelope")
	}
	return out.Bytes(), nil
}

// Unwrap recovers the data key from a Wrap envelope given the same
// passphrase. A wrong passphrase surfaces as a CryptoError.
func Unwrap(passphrase string, wrapped []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to build passphrase identity")
	}

	r, err := age.Decrypt(bytes.NewReader(wrapped), identity)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to open key envelope")
	}
	key, err := io.ReadAll(r)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindCrypto, err, "unable to read key envelope")
	}
	return key, nil
}
