package decode

import (
	"errors"
	"testing"
	"time"
)

func hexBytes(t *testing.T, groups ...string) []byte {
	t.Helper()
	var out []byte
	for _, g := range groups {
		b, err := decodeHexGroup(g)
		if err != nil {
			t.Fatalf("bad test fixture %q: %v", g, err)
		}
		out = append(out, b...)
	}
	return out
}

func decodeHexGroup(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New("odd length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	default:
		return 0, errors.New("bad hex digit")
	}
}

func TestFamilyBDecoder_Rfid(t *testing.T) {
	frame := hexBytes(t, "BB", "02", "8C090995", "00", "12", "02", "0400DD3950641100DD23B0B4", "4C01EC3F")

	recs, err := FamilyBDecoder{}.Decode("FamilyB/2437871205/LabelState", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Decode() produced %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.DeviceID != "2437871205" {
		t.Errorf("DeviceID = %q, want 2437871205", rec.DeviceID)
	}
	if rec.MessageKind != MessageKindRfid {
		t.Errorf("MessageKind = %q, want Rfid", rec.MessageKind)
	}
	if rec.ModuleNumber == nil || *rec.ModuleNumber != 2 {
		t.Fatalf("ModuleNumber = %v, want 2", rec.ModuleNumber)
	}
	if rec.ModuleID != "2349402517" {
		t.Errorf("ModuleID = %q, want 2349402517", rec.ModuleID)
	}

	entries, _ := rec.RawFields["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first, _ := entries[0].(map[string]any)
	if first["pos"] != 4 || first["rfid"] != "DD395064" {
		t.Errorf("entries[0] = %+v, want pos=4 rfid=DD395064", first)
	}
	second, _ := entries[1].(map[string]any)
	if second["pos"] != 17 || second["rfid"] != "DD23B0B4" {
		t.Errorf("entries[1] = %+v, want pos=17 rfid=DD23B0B4", second)
	}
}

func TestFamilyBDecoder_TempHum(t *testing.T) {
	// addr=01, temp=0x1B(27).0x29(41) -> 27.41, hum=0x38(56).0x35(53) -> 56.53.
	frame := hexBytes(t, "02", "00010002", "01", "1B29", "3835", "01020304")

	recs, err := FamilyBDecoder{}.Decode("FamilyB/2437871205/TemHum", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Decode() produced %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.ModuleNumber == nil || *rec.ModuleNumber != 2 {
		t.Fatalf("ModuleNumber = %v, want 2", rec.ModuleNumber)
	}
	entries, _ := rec.RawFields["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e, _ := entries[0].(map[string]any)
	if e["temp"] != 27.41 {
		t.Errorf("temp = %v, want 27.41", e["temp"])
	}
	if e["hum"] != 56.53 {
		t.Errorf("hum = %v, want 56.53", e["hum"])
	}
}

func TestFamilyBDecoder_Door(t *testing.T) {
	frame := hexBytes(t, "BA", "01", "00000001", "00", "AABBCCDD")

	recs, err := FamilyBDecoder{}.Decode("FamilyB/2437871205/OpeAck", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	rec := recs[0]
	if rec.MessageKind != MessageKindDoor {
		t.Errorf("MessageKind = %q, want Door", rec.MessageKind)
	}
	if rec.RawFields["status"] != "0x00" {
		t.Errorf("status = %v, want 0x00", rec.RawFields["status"])
	}
}

func TestFamilyBDecoder_TruncatedFrame(t *testing.T) {
	frame := hexBytes(t, "BB", "02")

	_, err := FamilyBDecoder{}.Decode("FamilyB/2437871205/LabelState", frame, time.Now())
	if !errors.Is(err, ErrFrameTruncated) {
		t.Fatalf("Decode() error = %v, want ErrFrameTruncated", err)
	}
}

func TestFamilyBDecoder_UnknownTopicTail(t *testing.T) {
	_, err := FamilyBDecoder{}.Decode("FamilyB/2437871205/Bogus", []byte{0x00}, time.Now())
	if !errors.Is(err, ErrUnknownMessageKind) {
		t.Fatalf("Decode() error = %v, want ErrUnknownMessageKind", err)
	}
}

func TestFamilyBDecoder_InvalidTopic(t *testing.T) {
	_, err := FamilyBDecoder{}.Decode("FamilyB", []byte{0xBB}, time.Now())
	if !errors.Is(err, ErrTopicInvalid) {
		t.Fatalf("Decode() error = %v, want ErrTopicInvalid", err)
	}
}
