package trainer

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	snapshotMagic   = "CMPL"
	snapshotVersion = 1

	// Upper bounds on header dimensions; larger values are corrupt.
	maxLayerWidth = 1 << 16
	maxClasses    = 1 << 20
)

type snapshotHeader struct {
	Magic   [4]byte
	Version uint32
	In      uint32
	Hidden  uint32
	Classes uint32
}

// MarshalBinary encodes the policy parameters, little endian.
func (p *Policy) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	hdr := snapshotHeader{
		Version: snapshotVersion,
		In:      uint32(p.Hidden.In),
		Hidden:  uint32(p.Hidden.Out),
		Classes: uint32(p.Head.Out),
	}
	copy(hdr.Magic[:], snapshotMagic)
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, errors.Wrap(err, "trainer: write snapshot header")
	}
	for _, block := range p.params() {
		if err := binary.Write(&buf, binary.LittleEndian, block); err != nil {
			return nil, errors.Wrap(err, "trainer: write snapshot parameters")
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalPolicy decodes a snapshot written by MarshalBinary.
func UnmarshalPolicy(data []byte) (*Policy, error) {
	r := bytes.NewReader(data)
	var hdr snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "trainer: read snapshot header")
	}
	if string(hdr.Magic[:]) != snapshotMagic {
		return nil, errors.Errorf("trainer: bad snapshot magic %q", hdr.Magic[:])
	}
	if hdr.Version != snapshotVersion {
		return nil, errors.Errorf("trainer: unsupported snapshot version %d", hdr.Version)
	}
	if hdr.In == 0 || hdr.Hidden == 0 {
		return nil, errors.New("trainer: snapshot has empty layers")
	}
	if hdr.In > maxLayerWidth || hdr.Hidden > maxLayerWidth || hdr.Classes > maxClasses {
		return nil, errors.Errorf("trainer: snapshot dimensions %dx%dx%d out of range", hdr.In, hdr.Hidden, hdr.Classes)
	}

	in, hidden, classes := int(hdr.In), int(hdr.Hidden), int(hdr.Classes)
	want := (int64(hidden)*int64(in) + int64(hidden) + int64(classes)*int64(hidden) + int64(classes)) * 4
	if int64(r.Len()) != want {
		return nil, errors.Errorf("trainer: snapshot body is %d bytes, want %d", r.Len(), want)
	}

	p := &Policy{
		Hidden: Dense{In: in, Out: hidden, W: make([]float32, hidden*in), B: make([]float32, hidden)},
		Head:   Dense{In: hidden, Out: classes, W: make([]float32, classes*hidden), B: make([]float32, classes)},
	}
	for _, block := range p.params() {
		if err := binary.Read(r, binary.LittleEndian, block); err != nil {
			return nil, errors.Wrap(err, "trainer: read snapshot parameters")
		}
	}
	return p, nil
}
