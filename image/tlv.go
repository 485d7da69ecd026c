/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package image

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"math/big"

	"github.com/mcu-tools/bootsim/util"
)

const (
	tlvKeyHash  uint8 = 0x01
	tlvSHA256   uint8 = 0x10
	tlvRSA2048  uint8 = 0x20
	tlvECDSA224 uint8 = 0x21
	tlvECDSA256 uint8 = 0x22
)

const tlvHeaderSize = 4

// TlvBuilder accumulates the bytes a signature or hash covers and produces
// the TLV tail appended after an image body.
type TlvBuilder interface {
	AddBytes(b []byte)
	Size() uint16
	Flags() uint32
	Make() []byte
}

type tlvRecord struct {
	typ uint8
	val []byte
}

func (r tlvRecord) bytes() []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, r.typ)
	binary.Write(buf, binary.LittleEndian, uint8(0))
	binary.Write(buf, binary.LittleEndian, uint16(len(r.val)))
	buf.Write(r.val)
	return buf.Bytes()
}

// hashOnlyTlv emits a single SHA256 record over the accumulated bytes; the
// default, signature-free variant.
type hashOnlyTlv struct {
	buf bytes.Buffer
}

func NewHashOnlyTlv() TlvBuilder {
	return &hashOnlyTlv{}
}

func (t *hashOnlyTlv) AddBytes(b []byte) { t.buf.Write(b) }
func (t *hashOnlyTlv) Flags() uint32     { return 0 }

func (t *hashOnlyTlv) Size() uint16 {
	return uint16(tlvHeaderSize + sha256.Size)
}

func (t *hashOnlyTlv) Make() []byte {
	sum := sha256.Sum256(t.buf.Bytes())
	return tlvRecord{typ: tlvSHA256, val: sum[:]}.bytes()
}

// rsaTlv signs the accumulated bytes' SHA256 hash with RSA-PSS, grounded
// on artifact/image/create.go's generateSigRsa, preceded by a key-hash
// record the way BuildSigTlvs orders them.
type rsaTlv struct {
	buf bytes.Buffer
	key *rsa.PrivateKey
}

func NewRSATlv(key *rsa.PrivateKey) TlvBuilder {
	return &rsaTlv{key: key}
}

func (t *rsaTlv) AddBytes(b []byte) { t.buf.Write(b) }
func (t *rsaTlv) Flags() uint32     { return 0 }

func (t *rsaTlv) Size() uint16 {
	keyHashLen := sha256.Size
	sigLen := t.key.Size()
	return uint16(tlvHeaderSize + sha256.Size + tlvHeaderSize + keyHashLen + tlvHeaderSize + sigLen)
}

func (t *rsaTlv) Make() []byte {
	sum := sha256.Sum256(t.buf.Bytes())

	pubDER, err := x509.MarshalPKIXPublicKey(&t.key.PublicKey)
	if err != nil {
		panic(util.FmtSimError("failed to marshal RSA public key: %s", err))
	}
	keyHash := sha256.Sum256(pubDER)

	opts := rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	sig, err := rsa.SignPSS(rand.Reader, t.key, crypto.SHA256, sum[:], &opts)
	if err != nil {
		panic(util.FmtSimError("failed to compute RSA signature: %s", err))
	}

	out := tlvRecord{typ: tlvSHA256, val: sum[:]}.bytes()
	out = append(out, tlvRecord{typ: tlvKeyHash, val: keyHash[:]}.bytes()...)
	out = append(out, tlvRecord{typ: tlvRSA2048, val: sig}.bytes()...)
	return out
}

// ecSig is the ASN.1 structure an ECDSA signature is marshaled into,
// mirroring artifact/image/create.go's ECDSASig.
type ecSig struct {
	R *big.Int
	S *big.Int
}

// ecdsaTlv signs the accumulated bytes' SHA256 hash with ECDSA, grounded on
// artifact/image/create.go's generateSigEc.
type ecdsaTlv struct {
	buf bytes.Buffer
	key *ecdsa.PrivateKey
}

func NewECDSATlv(key *ecdsa.PrivateKey) TlvBuilder {
	return &ecdsaTlv{key: key}
}

func (t *ecdsaTlv) AddBytes(b []byte) { t.buf.Write(b) }
func (t *ecdsaTlv) Flags() uint32     { return 0 }

func (t *ecdsaTlv) sigLen() int {
	// Matches key.sigLen(): worst case ASN.1 overhead for two curve-sized
	// integers, rounded up the way the teacher's key.go does per curve.
	switch t.key.Curve {
	case elliptic.P224():
		return 68
	case elliptic.P256():
		return 72
	default:
		return 72
	}
}

func (t *ecdsaTlv) tlvType() uint8 {
	switch t.key.Curve {
	case elliptic.P224():
		return tlvECDSA224
	default:
		return tlvECDSA256
	}
}

func (t *ecdsaTlv) Size() uint16 {
	keyHashLen := sha256.Size
	return uint16(tlvHeaderSize + sha256.Size + tlvHeaderSize + keyHashLen + tlvHeaderSize + t.sigLen())
}

func (t *ecdsaTlv) Make() []byte {
	sum := sha256.Sum256(t.buf.Bytes())

	pubDER, err := x509.MarshalPKIXPublicKey(&t.key.PublicKey)
	if err != nil {
		panic(util.FmtSimError("failed to marshal EC public key: %s", err))
	}
	keyHash := sha256.Sum256(pubDER)

	r, s, err := ecdsa.Sign(rand.Reader, t.key, sum[:])
	if err != nil {
		panic(util.FmtSimError("failed to compute EC signature: %s", err))
	}
	sig, err := asn1.Marshal(ecSig{R: r, S: s})
	if err != nil {
		panic(util.FmtSimError("failed to construct EC signature: %s", err))
	}

	want := t.sigLen()
	if len(sig) > want {
		panic(util.FmtSimError("EC signature longer than reserved TLV space"))
	}
	sig = append(sig, make([]byte, want-len(sig))...)

	out := tlvRecord{typ: tlvSHA256, val: sum[:]}.bytes()
	out = append(out, tlvRecord{typ: tlvKeyHash, val: keyHash[:]}.bytes()...)
	out = append(out, tlvRecord{typ: t.tlvType(), val: sig}.bytes()...)
	return out
}
