// Package modset reads and writes module-set files, the interchange format
// a resolver uses to hand permafrost an ordered record sequence.
package modset

// modset format:
//
// file header (little-endian)
// [4]byte("PMOD")
// uint32(format version)
// uint32(record count)
// remainder is a snappy stream of records:
//
// uint16(name length), name bytes
// uint8(flags: 1=package, 2=forbidden, 4=payload present)
// uint32(payload length), payload bytes

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lowtemp/permafrost/models"
)

var MODSET_MAGIC = "PMOD"

const (
	flagPackage = 1 << iota
	flagForbid
	flagPayload
)

var strucOptions = &struc.Options{Order: binary.LittleEndian}

type Header struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
	Count   uint32
}

type rawRecord struct {
	NameLen    uint16 `struc:"uint16,sizeof=Name"`
	Name       string
	Flags      uint8
	PayloadLen uint32 `struc:"uint32,sizeof=Payload"`
	Payload    []byte
}

type Writer struct {
	zw   *snappy.Writer
	left uint32
}

// NewWriter packs the header and returns a writer expecting exactly count
// records before Close.
func NewWriter(w io.Writer, count int) (*Writer, error) {
	if count < 0 || uint64(count) > math.MaxUint32 {
		return nil, errors.Errorf("record count %d does not fit the header", count)
	}
	header := &Header{Magic: MODSET_MAGIC, Version: 1, Count: uint32(count)}
	if err := struc.PackWithOptions(w, header, strucOptions); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &Writer{zw: snappy.NewBufferedWriter(w), left: uint32(count)}, nil
}

func (m *Writer) Pack(rec models.Record) error {
	if m.left == 0 {
		return errors.New("more records than the header declared")
	}
	if len(rec.Name) > math.MaxUint16 {
		return errors.Errorf("module name of %d bytes does not fit the record", len(rec.Name))
	}
	if uint64(len(rec.Payload)) > math.MaxUint32 {
		return errors.Errorf("payload of %d bytes does not fit the record", len(rec.Payload))
	}
	var flags uint8
	if rec.Package {
		flags |= flagPackage
	}
	if rec.Forbid {
		flags |= flagForbid
	}
	if rec.Payload != nil {
		flags |= flagPayload
	}
	raw := &rawRecord{Name: rec.Name, Flags: flags, Payload: rec.Payload}
	if err := struc.PackWithOptions(m.zw, raw, strucOptions); err != nil {
		return errors.Wrap(err, "failed to pack record")
	}
	m.left--
	return nil
}

func (m *Writer) Close() error {
	if m.left != 0 {
		m.zw.Close()
		return errors.Errorf("header declared %d more records", m.left)
	}
	return errors.Wrap(m.zw.Close(), "failed to flush records")
}

type Reader struct {
	zr     *snappy.Reader
	Header Header
	left   uint32
}

func NewReader(r io.Reader) (*Reader, error) {
	m := &Reader{}
	if err := struc.UnpackWithOptions(r, &m.Header, strucOptions); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if m.Header.Magic != MODSET_MAGIC {
		return nil, errors.New("invalid modset file magic")
	}
	if m.Header.Version != 1 {
		return nil, errors.Errorf("unsupported modset version %d", m.Header.Version)
	}
	m.left = m.Header.Count
	m.zr = snappy.NewReader(r)
	return m, nil
}

// Next returns records in file order and io.EOF once the declared count has
// been read.
func (m *Reader) Next() (models.Record, error) {
	if m.left == 0 {
		return models.Record{}, io.EOF
	}
	var raw rawRecord
	if err := struc.UnpackWithOptions(m.zr, &raw, strucOptions); err != nil {
		return models.Record{}, errors.Wrap(err, "failed to unpack record")
	}
	m.left--
	rec := models.Record{
		Name:    raw.Name,
		Package: raw.Flags&flagPackage != 0,
		Forbid:  raw.Flags&flagForbid != 0,
	}
	if raw.Flags&flagPayload != 0 {
		rec.Payload = raw.Payload
		if rec.Payload == nil {
			rec.Payload = []byte{}
		}
	}
	return rec, nil
}

func ReadAll(r io.Reader) ([]models.Record, error) {
	m, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var records []models.Record
	for {
		rec, err := m.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func ReadFile(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open modset")
	}
	defer f.Close()
	return ReadAll(f)
}

func WriteAll(w io.Writer, records []models.Record) error {
	m, err := NewWriter(w, len(records))
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := m.Pack(rec); err != nil {
			return err
		}
	}
	return m.Close()
}
