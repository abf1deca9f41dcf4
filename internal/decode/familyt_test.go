package decode

import (
	"errors"
	"testing"
	"time"
)

func TestFamilyTDecoder_TempHum(t *testing.T) {
	frame := []byte(`{"msg_type":"temper_humidity_req","data":[{"num":1,"temper_swot":27.41,"hum_swot":56.53},{"num":2,"temper_swot":22.1,"hum_swot":40.2}]}`)

	recs, err := FamilyTDecoder{}.Decode("FamilyT/2437871206/Report", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Decode() produced %d records, want 2", len(recs))
	}
	if recs[0].ModuleNumber == nil || *recs[0].ModuleNumber != 1 {
		t.Fatalf("recs[0].ModuleNumber = %v, want 1", recs[0].ModuleNumber)
	}
	if recs[0].RawFields["temper_swot"] != 27.41 {
		t.Errorf("temper_swot = %v, want 27.41", recs[0].RawFields["temper_swot"])
	}
	if _, ok := recs[0].RawFields["num"]; ok {
		t.Error("RawFields still contains \"num\" after extraction")
	}
}

func TestFamilyTDecoder_Rfid(t *testing.T) {
	frame := []byte(`{"msg_type":"u_state_changed_notify_req","data":[{"num":4,"tag_code":"DD395064","action":1},{"num":17,"tag_code":"DD23B0B4","action":0}]}`)

	recs, err := FamilyTDecoder{}.Decode("FamilyT/2437871206/Report", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Decode() produced %d records, want 1 (Rfid tag entries stay together)", len(recs))
	}
	entries, _ := recs[0].RawFields["tagEntries"].([]map[string]any)
	if len(entries) != 2 {
		t.Fatalf("tagEntries = %d, want 2", len(entries))
	}
	if entries[0]["action"] != float64(1) {
		t.Errorf("entries[0].action = %v, want 1", entries[0]["action"])
	}
}

func TestFamilyTDecoder_RfidModuleGrouped(t *testing.T) {
	frame := []byte(`{"msg_type":"u_state_changed_notify_req","data":[` +
		`{"num":2,"data":[{"num":3,"tag_code":"AABB0001","action":1}]},` +
		`{"num":4,"data":[{"num":7,"tag_code":"AABB0002","action":1},{"num":8,"tag_code":"AABB0003","action":0}]}]}`)

	recs, err := FamilyTDecoder{}.Decode("FamilyT/2437871206/Report", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Decode() produced %d records, want 2 (one per module port)", len(recs))
	}
	if recs[0].ModuleNumber == nil || *recs[0].ModuleNumber != 2 {
		t.Fatalf("recs[0].ModuleNumber = %v, want 2", recs[0].ModuleNumber)
	}
	if recs[1].ModuleNumber == nil || *recs[1].ModuleNumber != 4 {
		t.Fatalf("recs[1].ModuleNumber = %v, want 4", recs[1].ModuleNumber)
	}
	tags, _ := recs[1].RawFields["tagEntries"].([]map[string]any)
	if len(tags) != 2 {
		t.Fatalf("recs[1] tagEntries = %d, want 2", len(tags))
	}
	if tags[1]["action"] != float64(0) {
		t.Errorf("tags[1].action = %v, want 0", tags[1]["action"])
	}
}

func TestFamilyTDecoder_DeviceAndModuleInfo(t *testing.T) {
	frame := []byte(`{"msg_type":"devies_init_req","data":{"fw_version":"3.2.1","modules":[{"num":1,"fw_version":"1.0.0"},{"num":2,"fw_version":"1.0.1"}]}}`)

	recs, err := FamilyTDecoder{}.Decode("FamilyT/2437871206/Report", frame, time.Now())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Decode() produced %d records, want 3 (1 DeviceInfo + 2 ModuleInfo)", len(recs))
	}
	if recs[0].MessageKind != MessageKindDeviceInfo {
		t.Errorf("recs[0].MessageKind = %q, want DeviceInfo", recs[0].MessageKind)
	}
	if recs[1].MessageKind != MessageKindModuleInfo || recs[2].MessageKind != MessageKindModuleInfo {
		t.Errorf("recs[1:] MessageKind = %q, %q, want ModuleInfo", recs[1].MessageKind, recs[2].MessageKind)
	}
}

func TestFamilyTDecoder_UnknownMsgType(t *testing.T) {
	frame := []byte(`{"msg_type":"totally_bogus","data":{}}`)
	_, err := FamilyTDecoder{}.Decode("FamilyT/2437871206/Report", frame, time.Now())
	if !errors.Is(err, ErrUnknownMessageKind) {
		t.Fatalf("Decode() error = %v, want ErrUnknownMessageKind", err)
	}
}

func TestFamilyTDecoder_InvalidJSON(t *testing.T) {
	_, err := FamilyTDecoder{}.Decode("FamilyT/2437871206/Report", []byte(`not json`), time.Now())
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Decode() error = %v, want ErrDecodeFailed", err)
	}
}
