package exif

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// ifdEntry is one TIFF directory entry used to assemble test fixtures.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func ifdSize(entries []ifdEntry) uint32 {
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.value) > 4 {
			size += uint32(len(e.value))
		}
	}
	return size
}

// serializeIFD writes a little-endian IFD located at offset, with values
// longer than four bytes stored in a data area directly after the block.
func serializeIFD(offset uint32, entries []ifdEntry) []byte {
	var block, data bytes.Buffer
	dataOff := offset + uint32(2+12*len(entries)+4)

	binary.Write(&block, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&block, binary.LittleEndian, e.tag)
		binary.Write(&block, binary.LittleEndian, e.typ)
		binary.Write(&block, binary.LittleEndian, e.count)
		if len(e.value) <= 4 {
			padded := make([]byte, 4)
			copy(padded, e.value)
			block.Write(padded)
		} else {
			binary.Write(&block, binary.LittleEndian, dataOff)
			data.Write(e.value)
			dataOff += uint32(len(e.value))
		}
	}
	binary.Write(&block, binary.LittleEndian, uint32(0)) // no next IFD
	block.Write(data.Bytes())
	return block.Bytes()
}

func rational(num, den uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, num)
	binary.Write(&buf, binary.LittleEndian, den)
	return buf.Bytes()
}

func le32(v uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// buildTIFF assembles a minimal EXIF blob: IFD0 with camera tags plus an
// optional GPS sub-IFD holding Paris coordinates (48.8566 N, 2.3522 E).
func buildTIFF(withGPS bool) []byte {
	ifd0 := []ifdEntry{
		{tag: 0x010F, typ: 2, count: 6, value: []byte("GoCam\x00")},
		{tag: 0x0110, typ: 2, count: 3, value: []byte("X1\x00")},
		{tag: 0x0132, typ: 2, count: 20, value: []byte("2024:03:01 10:30:00\x00")},
	}

	var gps []ifdEntry
	if withGPS {
		gps = []ifdEntry{
			{tag: 0x0001, typ: 2, count: 2, value: []byte("N\x00")},
			{tag: 0x0002, typ: 5, count: 3, value: append(append(rational(48, 1), rational(51, 1)...), rational(2376, 100)...)},
			{tag: 0x0003, typ: 2, count: 2, value: []byte("E\x00")},
			{tag: 0x0004, typ: 5, count: 3, value: append(append(rational(2, 1), rational(21, 1)...), rational(792, 100)...)},
		}
		gpsOffset := 8 + ifdSize(ifd0) + 12 // one extra entry in ifd0 for the pointer
		ifd0 = append(ifd0, ifdEntry{tag: 0x8825, typ: 4, count: 1, value: le32(gpsOffset)})
	}

	var buf bytes.Buffer
	buf.Write([]byte("II"))
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	buf.Write(serializeIFD(8, ifd0))
	if withGPS {
		buf.Write(serializeIFD(uint32(buf.Len()), gps))
	}
	return buf.Bytes()
}

func TestExtractTagsAndTimestamp(t *testing.T) {
	d := Extract(buildTIFF(false))
	if d == nil {
		t.Fatal("Extract returned nil for valid EXIF")
	}

	if got := d.Tags["Make"]; got != "GoCam" {
		t.Errorf("Make = %q, want GoCam", got)
	}
	if got := d.Tags["Model"]; got != "X1" {
		t.Errorf("Model = %q, want X1", got)
	}

	if d.DateTaken == nil {
		t.Fatal("expected DateTaken to be set")
	}
	if got := d.DateTaken.Format("2006:01:02 15:04:05"); got != "2024:03:01 10:30:00" {
		t.Errorf("DateTaken = %s", got)
	}

	if d.HasCoordinates() {
		t.Error("fixture without GPS should not report coordinates")
	}
}

func TestExtractGPS(t *testing.T) {
	d := Extract(buildTIFF(true))
	if d == nil {
		t.Fatal("Extract returned nil for valid EXIF")
	}
	if !d.HasCoordinates() {
		t.Fatal("expected GPS coordinates")
	}
	if math.Abs(*d.Latitude-48.8566) > 1e-4 {
		t.Errorf("latitude = %f, want 48.8566", *d.Latitude)
	}
	if math.Abs(*d.Longitude-2.3522) > 1e-4 {
		t.Errorf("longitude = %f, want 2.3522", *d.Longitude)
	}
}

func TestExtractAbsence(t *testing.T) {
	if d := Extract([]byte("not an image")); d != nil {
		t.Errorf("expected nil for garbage input, got %+v", d)
	}
	if d := Extract(nil); d != nil {
		t.Errorf("expected nil for empty input, got %+v", d)
	}
	if (*Data)(nil).HasCoordinates() {
		t.Error("nil Data should not report coordinates")
	}
}
