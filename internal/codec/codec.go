// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package codec serializes sample batches in protobuf wire format.
//
// Schema (version 1):
//
//	message SensorData {
//	  repeated SensorDataSample samples = 1;
//	  uint32 schema_version = 15;
//	}
//	message SensorDataSample {
//	  float time = 1;
//	  Vector3 acceleration = 2;
//	  Vector3 gyroscope = 3;
//	  Vector3 magnetometer = 4;
//	}
//	message Vector3 { float x = 1; float y = 2; float z = 3; }
//
// Every float is written, zeros included, so a sample always occupies the
// same number of bytes.
package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/relabs-tech/eos_sensor/internal/imu"
)

// SchemaVersion is written into every encoded batch.
const SchemaVersion = 1

const (
	fieldSamples       protowire.Number = 1
	fieldSchemaVersion protowire.Number = 15

	fieldTime         protowire.Number = 1
	fieldAcceleration protowire.Number = 2
	fieldGyroscope    protowire.Number = 3
	fieldMagnetometer protowire.Number = 4

	fieldX protowire.Number = 1
	fieldY protowire.Number = 2
	fieldZ protowire.Number = 3
)

var (
	ErrTooLarge           = errors.New("codec: encoded batch exceeds size limit")
	ErrMalformed          = errors.New("codec: malformed batch")
	ErrUnsupportedVersion = errors.New("codec: unsupported schema version")
)

const (
	vectorLen  = 3 * (1 + 4)                 // three tagged fixed32
	sampleLen  = (1 + 4) + 3*(1+1+vectorLen) // time + three nested vectors
	sampleRec  = 1 + 1 + sampleLen           // tag + length + body
	versionRec = 1 + 1                       // tag 15 + varint(1)
)

// EncodedLen returns the exact encoded size of a batch of n samples.
func EncodedLen(n int) int {
	if n < 0 {
		n = 0
	}
	return n*sampleRec + versionRec
}

// Encoder encodes batches, refusing any whose encoding would exceed MaxSize.
// A zero MaxSize means no limit.
type Encoder struct {
	MaxSize int
}

// Encode returns the wire form of samples. It fails only with ErrTooLarge.
func (e Encoder) Encode(samples []imu.Sample) ([]byte, error) {
	return e.Append(nil, samples)
}

// Append appends the wire form of samples to dst.
func (e Encoder) Append(dst []byte, samples []imu.Sample) ([]byte, error) {
	n := EncodedLen(len(samples))
	if e.MaxSize > 0 && n > e.MaxSize {
		return dst, fmt.Errorf("%w: %d samples need %d bytes, limit %d", ErrTooLarge, len(samples), n, e.MaxSize)
	}
	if cap(dst)-len(dst) < n {
		grown := make([]byte, len(dst), len(dst)+n)
		copy(grown, dst)
		dst = grown
	}
	for i := range samples {
		dst = appendSample(dst, &samples[i])
	}
	dst = protowire.AppendTag(dst, fieldSchemaVersion, protowire.VarintType)
	dst = protowire.AppendVarint(dst, SchemaVersion)
	return dst, nil
}

// Encode encodes samples without a size limit.
func Encode(samples []imu.Sample) ([]byte, error) {
	return Encoder{}.Encode(samples)
}

func appendSample(b []byte, s *imu.Sample) []byte {
	b = protowire.AppendTag(b, fieldSamples, protowire.BytesType)
	b = protowire.AppendVarint(b, sampleLen)
	b = appendFloat(b, fieldTime, s.Time)
	b = appendVector(b, fieldAcceleration, s.Acceleration)
	b = appendVector(b, fieldGyroscope, s.Gyroscope)
	b = appendVector(b, fieldMagnetometer, s.Magnetometer)
	return b
}

func appendVector(b []byte, num protowire.Number, v imu.Vector3) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, vectorLen)
	b = appendFloat(b, fieldX, v.X)
	b = appendFloat(b, fieldY, v.Y)
	b = appendFloat(b, fieldZ, v.Z)
	return b
}

func appendFloat(b []byte, num protowire.Number, f float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(f))
}

// Decode parses one encoded batch. Unknown fields are skipped; a missing
// schema_version is read as version 1.
func Decode(b []byte) ([]imu.Sample, error) {
	samples := []imu.Sample{}
	version := uint64(SchemaVersion)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(n)
		}
		b = b[n:]
		switch {
		case num == fieldSamples && typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(n)
			}
			s, err := decodeSample(body)
			if err != nil {
				return nil, err
			}
			samples = append(samples, s)
			b = b[n:]
		case num == fieldSchemaVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(n)
			}
			version = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(n)
			}
			b = b[n:]
		}
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return samples, nil
}

func decodeSample(b []byte) (imu.Sample, error) {
	var s imu.Sample
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, malformed(n)
		}
		b = b[n:]
		var err error
		switch {
		case num == fieldTime && typ == protowire.Fixed32Type:
			s.Time, n = consumeFloat(b)
		case num == fieldAcceleration && typ == protowire.BytesType:
			s.Acceleration, n, err = consumeVector(b)
		case num == fieldGyroscope && typ == protowire.BytesType:
			s.Gyroscope, n, err = consumeVector(b)
		case num == fieldMagnetometer && typ == protowire.BytesType:
			s.Magnetometer, n, err = consumeVector(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if err != nil {
			return s, err
		}
		if n < 0 {
			return s, malformed(n)
		}
		b = b[n:]
	}
	return s, nil
}

func consumeVector(b []byte) (imu.Vector3, int, error) {
	var v imu.Vector3
	body, total := protowire.ConsumeBytes(b)
	if total < 0 {
		return v, total, nil
	}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return v, 0, malformed(n)
		}
		body = body[n:]
		switch {
		case num == fieldX && typ == protowire.Fixed32Type:
			v.X, n = consumeFloat(body)
		case num == fieldY && typ == protowire.Fixed32Type:
			v.Y, n = consumeFloat(body)
		case num == fieldZ && typ == protowire.Fixed32Type:
			v.Z, n = consumeFloat(body)
		default:
			n = protowire.ConsumeFieldValue(num, typ, body)
		}
		if n < 0 {
			return v, 0, malformed(n)
		}
		body = body[n:]
	}
	return v, total, nil
}

func consumeFloat(b []byte) (float32, int) {
	u, n := protowire.ConsumeFixed32(b)
	return math.Float32frombits(u), n
}

func malformed(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
