package decode

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rackmesh/telemetry-core/internal/topics"
)

// Family-B frame discriminator bytes.
const (
	byteRfidHeader      = 0xBB
	byteDoorHeader      = 0xBA
	byteHeartbeatCB     = 0xCB
	byteHeartbeatCC     = 0xCC
	byteInfoHeader      = 0xEF
	byteInfoDevice      = 0x01
	byteInfoModule      = 0x02
	byteAckHeader       = 0xAA
	cmdColorSet         = 0xE1
	cmdTamperClear      = 0xE2
	cmdColorQuery       = 0xE4
	ackResultSuccess    = 0xA1
	msgCodeLen          = 4
	heartbeatEntryLen   = 6 // modAdd(1) + modId(4) + uCount(1)
	rfidEntryLen        = 6 // uPos(1) + alarm(1) + uRfid(4)
	tempHumEntryLen     = 5 // addr(1) + temp(2) + hum(2)
	noiseEntryLen       = 5 // addr(1) + level(4)
	moduleInfoEntryLen  = 7 // modAdd(1) + fw(6)
	maxHeartbeatModules = 10
	maxTempHumPorts     = 6
	maxNoisePorts       = 3
	minModAddress       = 1
	maxModAddress       = 5
)

// colorNames maps the Family-B colour code to its canonical name.
var colorNames = map[int]string{
	0: "off", 1: "red", 2: "purple", 3: "yellow", 4: "green",
	5: "cyan", 6: "blue", 7: "white", 8: "red_f", 9: "purple_f",
	10: "yellow_f", 11: "green_f", 12: "cyan_f", 13: "blue_f", 14: "white_f",
}

// FamilyBDecoder decodes the compact binary/hex framed protocol. It is
// a pure function from (topic, frame) to zero-or-more
// Records; family B never splits a single frame into multiple module-port
// records (unlike family T).
type FamilyBDecoder struct{}

// Decode implements Decoder.
func (FamilyBDecoder) Decode(topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	deviceID := topics.DeviceID(topic)
	if deviceID == "" {
		return nil, ErrTopicInvalid
	}

	r := NewReader(frame)
	tail := topics.Category(topic)

	switch tail {
	case "TemHum":
		return decodeFamilyBTempHum(r, deviceID, topic, frame, receivedAt)
	case "Noise":
		return decodeFamilyBNoise(r, deviceID, topic, frame, receivedAt)
	case "LabelState":
		b0, err := r.ReadU8(0)
		if err != nil {
			return nil, err
		}
		if b0 != byteRfidHeader {
			return nil, fmt.Errorf("%w: LabelState frame missing 0xBB header", ErrUnknownMessageKind)
		}
		return decodeFamilyBRfid(r, deviceID, topic, frame, receivedAt)
	case "OpeAck":
		return decodeFamilyBOpeAck(r, deviceID, topic, frame, receivedAt)
	default:
		return nil, fmt.Errorf("%w: unrecognised topic category %q", ErrUnknownMessageKind, tail)
	}
}

func decodeFamilyBOpeAck(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	b0, err := r.ReadU8(0)
	if err != nil {
		return nil, err
	}

	switch b0 {
	case byteHeartbeatCB, byteHeartbeatCC:
		return decodeFamilyBHeartbeat(r, deviceID, topic, frame, receivedAt)
	case byteDoorHeader:
		return decodeFamilyBDoor(r, deviceID, topic, frame, receivedAt)
	case byteInfoHeader:
		b1, err := r.ReadU8(1)
		if err != nil {
			return nil, err
		}
		switch b1 {
		case byteInfoDevice:
			return decodeFamilyBDeviceInfo(r, deviceID, topic, frame, receivedAt)
		case byteInfoModule:
			return decodeFamilyBModuleInfo(r, deviceID, topic, frame, receivedAt)
		default:
			return nil, fmt.Errorf("%w: unrecognised 0xEF sub-command 0x%02X", ErrUnknownMessageKind, b1)
		}
	case byteAckHeader:
		cmd, err := r.ReadU8(6)
		if err != nil {
			return nil, err
		}
		switch cmd {
		case cmdColorSet:
			return decodeFamilyBAck(r, deviceID, topic, frame, receivedAt, MessageKindColorSetAck, false)
		case cmdTamperClear:
			return decodeFamilyBAck(r, deviceID, topic, frame, receivedAt, MessageKindTamperClearAck, false)
		case cmdColorQuery:
			return decodeFamilyBAck(r, deviceID, topic, frame, receivedAt, MessageKindColorQueryAck, true)
		default:
			return nil, fmt.Errorf("%w: unrecognised command byte 0x%02X", ErrUnknownMessageKind, cmd)
		}
	default:
		return nil, fmt.Errorf("%w: unrecognised OpeAck header byte 0x%02X", ErrUnknownMessageKind, b0)
	}
}

func decodeFamilyBHeartbeat(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	remaining := len(frame) - 1 - msgCodeLen
	if remaining < 0 {
		return nil, ErrFrameTruncated
	}
	count := remaining / heartbeatEntryLen
	if count > maxHeartbeatModules {
		count = maxHeartbeatModules
	}

	var modules []any
	off := 1
	for i := 0; i < count; i++ {
		modAdd, err := r.ReadU8(off)
		if err != nil {
			return nil, err
		}
		modIDRaw, err := r.ReadU32BE(off + 1)
		if err != nil {
			return nil, err
		}
		uCount, err := r.ReadU8(off + 5)
		if err != nil {
			return nil, err
		}
		off += heartbeatEntryLen

		if int(modAdd) < minModAddress || int(modAdd) > maxModAddress || modIDRaw == 0 {
			continue
		}
		modules = append(modules, map[string]any{
			"modAdd": int(modAdd),
			"modId":  strconv.FormatUint(uint64(modIDRaw), 10),
			"uCount": int(uCount),
		})
	}

	msgID, err := readMsgCodeHex(r, len(frame)-msgCodeLen)
	if err != nil {
		return nil, err
	}

	rec := newFamilyBRecord(deviceID, MessageKindHeartbeat, nil, "", topic, frame, receivedAt, RawFields{
		"modules": modules,
	})
	rec.RawFields["msgId"] = msgID
	return []Record{rec}, nil
}

func decodeFamilyBRfid(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	modAdd, err := r.ReadU8(1)
	if err != nil {
		return nil, err
	}
	modIDRaw, err := r.ReadU32BE(2)
	if err != nil {
		return nil, err
	}
	uCount, err := r.ReadU8(7)
	if err != nil {
		return nil, err
	}
	rfidCount, err := r.ReadU8(8)
	if err != nil {
		return nil, err
	}

	entries := make([]any, 0, rfidCount)
	off := 9
	for i := 0; i < int(rfidCount); i++ {
		pos, err := r.ReadU8(off)
		if err != nil {
			return nil, err
		}
		alarm, err := r.ReadU8(off + 1)
		if err != nil {
			return nil, err
		}
		tag, err := r.ReadHexString(off+2, 4)
		if err != nil {
			return nil, err
		}
		off += rfidEntryLen

		entries = append(entries, map[string]any{
			"pos":   int(pos),
			"alarm": int(alarm),
			"rfid":  tag,
		})
	}

	msgID, err := readMsgCodeHex(r, off)
	if err != nil {
		return nil, err
	}

	mod := int(modAdd)
	rec := newFamilyBRecord(deviceID, MessageKindRfid, &mod, strconv.FormatUint(uint64(modIDRaw), 10), topic, frame, receivedAt, RawFields{
		"uCount":    int(uCount),
		"rfidCount": int(rfidCount),
		"entries":   entries,
		"msgId":     msgID,
	})
	return []Record{rec}, nil
}

func decodeFamilyBTempHum(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	modAdd, err := r.ReadU8(0)
	if err != nil {
		return nil, err
	}
	modIDRaw, err := r.ReadU32BE(1)
	if err != nil {
		return nil, err
	}

	remaining := len(frame) - 5 - msgCodeLen
	if remaining < 0 {
		return nil, ErrFrameTruncated
	}
	count := remaining / tempHumEntryLen
	if count > maxTempHumPorts {
		count = maxTempHumPorts
	}

	entries := make([]any, 0, count)
	off := 5
	for i := 0; i < count; i++ {
		addr, err := r.ReadU8(off)
		if err != nil {
			return nil, err
		}
		temp, err := r.ReadDecimalFixed2(off + 1)
		if err != nil {
			return nil, err
		}
		hum, err := r.ReadDecimalFixed2(off + 3)
		if err != nil {
			return nil, err
		}
		off += tempHumEntryLen

		entries = append(entries, map[string]any{
			"addr": int(addr),
			"temp": temp,
			"hum":  hum,
		})
	}

	msgID, err := readMsgCodeHex(r, off)
	if err != nil {
		return nil, err
	}

	mod := int(modAdd)
	rec := newFamilyBRecord(deviceID, MessageKindTempHum, &mod, strconv.FormatUint(uint64(modIDRaw), 10), topic, frame, receivedAt, RawFields{
		"entries": entries,
		"msgId":   msgID,
	})
	return []Record{rec}, nil
}

func decodeFamilyBNoise(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	modAdd, err := r.ReadU8(0)
	if err != nil {
		return nil, err
	}
	modIDRaw, err := r.ReadU32BE(1)
	if err != nil {
		return nil, err
	}

	remaining := len(frame) - 5 - msgCodeLen
	if remaining < 0 {
		return nil, ErrFrameTruncated
	}
	count := remaining / noiseEntryLen
	if count > maxNoisePorts {
		count = maxNoisePorts
	}

	entries := make([]any, 0, count)
	off := 5
	for i := 0; i < count; i++ {
		addr, err := r.ReadU8(off)
		if err != nil {
			return nil, err
		}
		level, err := r.ReadU32BE(off + 1)
		if err != nil {
			return nil, err
		}
		off += noiseEntryLen

		entries = append(entries, map[string]any{
			"addr":  int(addr),
			"level": float64(level),
		})
	}

	msgID, err := readMsgCodeHex(r, off)
	if err != nil {
		return nil, err
	}

	mod := int(modAdd)
	rec := newFamilyBRecord(deviceID, MessageKindNoise, &mod, strconv.FormatUint(uint64(modIDRaw), 10), topic, frame, receivedAt, RawFields{
		"entries": entries,
		"msgId":   msgID,
	})
	return []Record{rec}, nil
}

func decodeFamilyBDoor(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	modAdd, err := r.ReadU8(1)
	if err != nil {
		return nil, err
	}
	modIDRaw, err := r.ReadU32BE(2)
	if err != nil {
		return nil, err
	}
	status, err := r.ReadU8(6)
	if err != nil {
		return nil, err
	}
	msgID, err := readMsgCodeHex(r, 7)
	if err != nil {
		return nil, err
	}

	mod := int(modAdd)
	rec := newFamilyBRecord(deviceID, MessageKindDoor, &mod, strconv.FormatUint(uint64(modIDRaw), 10), topic, frame, receivedAt, RawFields{
		"status": fmt.Sprintf("0x%02x", status),
		"msgId":  msgID,
	})
	return []Record{rec}, nil
}

func decodeFamilyBDeviceInfo(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	devType, err := r.ReadU16BE(2)
	if err != nil {
		return nil, err
	}
	fw, err := r.ReadU32BE(4)
	if err != nil {
		return nil, err
	}
	ip, err := r.ReadIPv4(8)
	if err != nil {
		return nil, err
	}
	mask, err := r.ReadIPv4(12)
	if err != nil {
		return nil, err
	}
	gateway, err := r.ReadIPv4(16)
	if err != nil {
		return nil, err
	}
	mac, err := r.ReadMAC(20)
	if err != nil {
		return nil, err
	}
	msgID, err := readMsgCodeHex(r, 26)
	if err != nil {
		return nil, err
	}

	rec := newFamilyBRecord(deviceID, MessageKindDeviceInfo, nil, "", topic, frame, receivedAt, RawFields{
		"devType": int(devType),
		"fw":      strconv.FormatUint(uint64(fw), 10),
		"ip":      ip,
		"mask":    mask,
		"gateway": gateway,
		"mac":     mac,
		"msgId":   msgID,
	})
	return []Record{rec}, nil
}

func decodeFamilyBModuleInfo(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	remaining := len(frame) - 2 - msgCodeLen
	if remaining < 0 {
		return nil, ErrFrameTruncated
	}
	count := remaining / moduleInfoEntryLen

	modules := make([]any, 0, count)
	off := 2
	for i := 0; i < count; i++ {
		modAdd, err := r.ReadU8(off)
		if err != nil {
			return nil, err
		}
		fwBytes, err := r.ReadBytes(off+1, 6)
		if err != nil {
			return nil, err
		}
		off += moduleInfoEntryLen

		var fw uint64
		for _, b := range fwBytes {
			fw = fw<<8 | uint64(b)
		}

		modules = append(modules, map[string]any{
			"modAdd": int(modAdd),
			"fw":     strconv.FormatUint(fw, 10),
		})
	}

	msgID, err := readMsgCodeHex(r, off)
	if err != nil {
		return nil, err
	}

	rec := newFamilyBRecord(deviceID, MessageKindModuleInfo, nil, "", topic, frame, receivedAt, RawFields{
		"modules": modules,
		"msgId":   msgID,
	})
	return []Record{rec}, nil
}

func decodeFamilyBAck(r *Reader, deviceID, topic string, frame []byte, receivedAt time.Time, kind MessageKind, withColors bool) ([]Record, error) {
	cmdResult, err := r.ReadU8(5)
	if err != nil {
		return nil, err
	}
	modNum, err := r.ReadU8(7)
	if err != nil {
		return nil, err
	}

	var colors []any
	off := 8
	if withColors {
		n := len(frame) - off - msgCodeLen
		if n < 0 {
			return nil, ErrFrameTruncated
		}
		for i := 0; i < n; i++ {
			code, err := r.ReadU8(off + i)
			if err != nil {
				return nil, err
			}
			name, ok := colorNames[int(code)]
			if !ok {
				name = "unknown"
			}
			colors = append(colors, map[string]any{
				"pos":   i + 1,
				"code":  int(code),
				"color": name,
			})
		}
		off += n
	}

	msgID, err := readMsgCodeHex(r, off)
	if err != nil {
		return nil, err
	}

	mod := int(modNum)
	rec := newFamilyBRecord(deviceID, kind, &mod, "", topic, frame, receivedAt, RawFields{
		"success": cmdResult == ackResultSuccess,
		"colors":  colors,
		"msgId":   msgID,
	})
	return []Record{rec}, nil
}

func readMsgCodeHex(r *Reader, off int) (string, error) {
	return r.ReadHexString(off, msgCodeLen)
}

func newFamilyBRecord(deviceID string, kind MessageKind, moduleNumber *int, moduleID, topic string, frame []byte, receivedAt time.Time, fields RawFields) Record {
	return Record{
		DeviceID:     deviceID,
		DeviceKind:   DeviceKindB,
		MessageKind:  kind,
		ModuleNumber: moduleNumber,
		ModuleID:     moduleID,
		RawFields:    fields,
		ReceivedAt:   receivedAt,
		RawTopic:     topic,
		RawFrame:     frame,
	}
}
