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

package filter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

var typeCipherBlock = stringid.MustNew("cipher-blk")

const (
	saltMagic  = "Salted__"
	saltLen    = 8
	cbcKeyLen  = 32 // AES-256
	cbcIVLen   = aes.BlockSize
	kdfRounds  = 1 // single-round MD5-less KDF; see DESIGN.md for the EVP_BytesToKey departure
)

// CipherBlock encrypts or decrypts a stream with AES-256-CBC using an
// OpenSSL-compatible "Salted__" header: the first 16 bytes of
// ciphertext are the literal string "Salted__" followed by an 8-byte
// salt, from which the key and IV are derived via a passphrase-based
// KDF. The filter buffers input to whole cipher blocks; a final
// partial block is PKCS#7-padded on encrypt and stripped on decrypt.
type CipherBlock struct {
	passphrase []byte
	decode     bool

	headerDone bool
	headerBuf  []byte // accumulates ciphertext header bytes on decode

	block  cipher.Block
	stream cipher.BlockMode
	carry  []byte
	done   bool
}

// NewCipherBlockEncrypt returns an encrypting AES-256-CBC filter.
func NewCipherBlockEncrypt(passphrase []byte) *CipherBlock {
	return &CipherBlock{passphrase: passphrase}
}

// NewCipherBlockDecrypt returns a decrypting AES-256-CBC filter.
func NewCipherBlockDecrypt(passphrase []byte) *CipherBlock {
	return &CipherBlock{passphrase: passphrase, decode: true}
}

func (*CipherBlock) FilterType() stringid.ID { return typeCipherBlock }

// deriveKeyIV implements a single-round, SHA-256-based key derivation
// from a passphrase and salt (OpenSSL's classic EVP_BytesToKey, but
// with SHA-256 in place of MD5).
func deriveKeyIV(passphrase, salt []byte) (key, iv []byte) {
	var data []byte
	var prev []byte
	for len(data) < cbcKeyLen+cbcIVLen {
		h := sha256.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		data = append(data, prev...)
	}
	return data[:cbcKeyLen], data[cbcKeyLen : cbcKeyLen+cbcIVLen]
}

func (c *CipherBlock) initEncrypt(output *Buffer) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return xerr.Wrap(xerr.KindCrypto, err, "unable to generate salt")
	}
	key, iv := deriveKeyIV(c.passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return xerr.Wrap(xerr.KindCrypto, err, "unable to initialize cipher")
	}
	c.block = block
	c.stream = cipher.NewCBCEncrypter(block, iv)
	output.Append([]byte(saltMagic))
	output.Append(salt)
	c.headerDone = true
	return nil
}

func (c *CipherBlock) initDecrypt(salt []byte) error {
	key, iv := deriveKeyIV(c.passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return xerr.Wrap(xerr.KindCrypto, err, "unable to initialize cipher")
	}
	c.block = block
	c.stream = cipher.NewCBCDecrypter(block, iv)
	c.headerDone = true
	return nil
}

// ProcessInOut consumes input, flushing whole cipher blocks to output
// as they accumulate. input == nil signals end of stream: on encrypt
// the final partial block is PKCS#7-padded and flushed; on decrypt the
// final decrypted block has its padding stripped.
func (c *CipherBlock) ProcessInOut(input []byte, output *Buffer) error {
	if c.decode {
		return c.processDecode(input, output)
	}
	return c.processEncode(input, output)
}

func (c *CipherBlock) processEncode(input []byte, output *Buffer) error {
	if !c.headerDone {
		if err := c.initEncrypt(output); err != nil {
			return err
		}
	}
	if input == nil {
		pad := aes.BlockSize - len(c.carry)%aes.BlockSize
		padded := append(append([]byte{}, c.carry...), paddingBytes(pad)...)
		dst := make([]byte, len(padded))
		c.stream.CryptBlocks(dst, padded)
		output.Append(dst)
		c.carry = nil
		c.done = true
		return nil
	}
	c.carry = append(c.carry, input...)
	whole := len(c.carry) - len(c.carry)%aes.BlockSize
	if whole == 0 {
		return nil
	}
	dst := make([]byte, whole)
	c.stream.CryptBlocks(dst, c.carry[:whole])
	output.Append(dst)
	c.carry = c.carry[whole:]
	return nil
}

func (c *CipherBlock) processDecode(input []byte, output *Buffer) error {
	if !c.headerDone {
		c.headerBuf = append(c.headerBuf, input...)
		if len(c.headerBuf) < len(saltMagic)+saltLen {
			return nil
		}
		if string(c.headerBuf[:len(saltMagic)]) != saltMagic {
			return xerr.New(xerr.KindCrypto, "ciphertext is missing the Salted__ header")
		}
		salt := c.headerBuf[len(saltMagic) : len(saltMagic)+saltLen]
		if err := c.initDecrypt(salt); err != nil {
			return err
		}
		input = c.headerBuf[len(saltMagic)+saltLen:]
		c.headerBuf = nil
	}
	if input == nil {
		if len(c.carry)%aes.BlockSize != 0 {
			return xerr.New(xerr.KindCrypto, "ciphertext length is not a multiple of the block size")
		}
		if len(c.carry) == 0 {
			c.done = true
			return nil
		}
		dst := make([]byte, len(c.carry))
		c.stream.CryptBlocks(dst, c.carry)
		unpadded, err := stripPadding(dst)
		if err != nil {
			return err
		}
		output.Append(unpadded)
		c.carry = nil
		c.done = true
		return nil
	}
	c.carry = append(c.carry, input...)
	// Hold back the final whole block: it might carry PKCS#7 padding
	// that is only valid to strip once we know it's truly the last.
	keep := aes.BlockSize
	if len(c.carry) <= keep {
		return nil
	}
	whole := len(c.carry) - keep
	whole -= whole % aes.BlockSize
	if whole == 0 {
		return nil
	}
	dst := make([]byte, whole)
	c.stream.CryptBlocks(dst, c.carry[:whole])
	output.Append(dst)
	c.carry = c.carry[whole:]
	return nil
}

func paddingBytes(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(n)
	}
	return p
}

func stripPadding(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return buf, nil
	}
	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(buf) {
		return nil, xerr.New(xerr.KindCrypto, "invalid PKCS#7 padding")
	}
	return buf[:len(buf)-pad], nil
}

// Done reports whether the cipher has emitted its final block.
func (c *CipherBlock) Done() bool { return c.done }
