package canonical

// RfidTag is a single position's RFID reading within an Rfid payload.
type RfidTag struct {
	Position int    `json:"position"`
	RFID     string `json:"rfid"`
	Alarm    int    `json:"alarm"`
	State    string `json:"state"`
}

// RfidPayload is the Rfid canonical payload. Once the State
// Engine has processed a record, RfidData holds only the positions
// that changed (see Meta.HasChanges); the raw decoder output before
// state tracking holds the module's full tag inventory instead.
type RfidPayload struct {
	UCount    int       `json:"uCount"`
	RfidCount int       `json:"rfidCount"`
	RfidData  []RfidTag `json:"rfidData"`
}

// TempHumEntry is one module port's temperature/humidity reading. A
// TempHum canonical record's Payload is []TempHumEntry.
type TempHumEntry struct {
	Position    int     `json:"position"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// NoiseEntry is one module port's noise level reading. A Noise canonical
// record's Payload is []NoiseEntry.
type NoiseEntry struct {
	Position int     `json:"position"`
	Level    float64 `json:"level"`
}

// DoorPayload is the Door canonical payload. Duration is set by
// the State Engine on the second and subsequent records for a key;
// it is the number of seconds since the previous status.
type DoorPayload struct {
	Status   string   `json:"status"`
	Duration *float64 `json:"duration,omitempty"`
}

// ColorEntry is one module port's colour reading. A Color canonical
// record's Payload is []ColorEntry.
type ColorEntry struct {
	Position int    `json:"position"`
	Color    string `json:"color"`
	Code     int    `json:"code"`
}

// HeartbeatModule is one module's inventory entry within a Heartbeat
// payload.
type HeartbeatModule struct {
	ModuleAddress int    `json:"moduleAddress"`
	ModuleID      string `json:"moduleId"`
	UCount        int    `json:"uCount"`
}

// HeartbeatPayload is the Heartbeat canonical payload.
type HeartbeatPayload struct {
	Modules []HeartbeatModule `json:"modules"`
}

// DeviceInfoPayload is the DeviceInfo canonical payload:
// gateway firmware and network metadata.
type DeviceInfoPayload struct {
	DeviceType int    `json:"deviceType"`
	Firmware   string `json:"firmware"`
	IP         string `json:"ip"`
	Mask       string `json:"mask"`
	Gateway    string `json:"gateway"`
	MAC        string `json:"mac"`
}

// ModuleInfoEntry is one module's firmware inventory entry within a
// ModuleInfo payload.
type ModuleInfoEntry struct {
	ModuleAddress int    `json:"moduleAddress"`
	Firmware      string `json:"firmware"`
}

// ModuleInfoPayload is the ModuleInfo canonical payload.
type ModuleInfoPayload struct {
	Modules []ModuleInfoEntry `json:"modules"`
}

// AckPayload is the canonical payload for the command-acknowledgement
// kinds (ColorSetAck, ColorQueryAck, TamperClearAck). These are
// gateway-family-B command replies rather than sensor readings; they
// carry the command result and, for ColorQueryAck, the queried colours.
type AckPayload struct {
	Success bool         `json:"success"`
	Colors  []ColorEntry `json:"colors,omitempty"`
}
