// Package measurement defines the sampled electrical reading shared by both
// producer implementations (the networked SML client and the onboard pipe
// sampler), the OBIS table used to decode SML responses into it, and the
// outbound JSON envelope uploaded to the collector endpoint.
package measurement

import (
	"encoding/json"
	"fmt"
)

// VarID identifies one of the seventeen slots of a Measurement, in the
// fixed order the upstream protocol and the JSON envelope both depend on.
type VarID int

const (
	Timestamp VarID = iota
	PowerAllPhases
	PowerL1
	PowerL2
	PowerL3
	CurrentNeutral
	CurrentL1
	CurrentL2
	CurrentL3
	VoltageL1
	VoltageL2
	VoltageL3
	PhaseAngleVoltageL2L1
	PhaseAngleVoltageL3L1
	PhaseAngleCurrentVoltageL1
	PhaseAngleCurrentVoltageL2
	PhaseAngleCurrentVoltageL3
	NumVariables
)

var varNames = [NumVariables]string{
	Timestamp:                  "timestamp",
	PowerAllPhases:             "power-all-phases",
	PowerL1:                    "power-l1",
	PowerL2:                    "power-l2",
	PowerL3:                    "power-l3",
	CurrentNeutral:             "current-neutral",
	CurrentL1:                  "current-l1",
	CurrentL2:                  "current-l2",
	CurrentL3:                  "current-l3",
	VoltageL1:                  "voltage-l1",
	VoltageL2:                  "voltage-l2",
	VoltageL3:                  "voltage-l3",
	PhaseAngleVoltageL2L1:      "phase-angle-voltage-l2-l1",
	PhaseAngleVoltageL3L1:      "phase-angle-voltage-l3-l1",
	PhaseAngleCurrentVoltageL1: "phase-angle-current-voltage-l1",
	PhaseAngleCurrentVoltageL2: "phase-angle-current-voltage-l2",
	PhaseAngleCurrentVoltageL3: "phase-angle-current-voltage-l3",
}

// Name returns the human-readable name of a variable slot, or "unknown" for
// an out-of-range id.
func (v VarID) Name() string {
	if v < 0 || v >= NumVariables {
		return "unknown"
	}
	return varNames[v]
}

// OBISEntry maps a six-byte OBIS identifier, as found in an SML
// GetProcParameterResponse tree, to the measurement slot it fills.
type OBISEntry struct {
	ID   VarID
	OBIS [6]byte
}

// OBISTable lists every OBIS identifier this agent understands. It is a
// compile-time constant; lookups are a linear scan since sixteen entries
// never justify a map's overhead.
var OBISTable = [...]OBISEntry{
	{PowerAllPhases, [6]byte{0x01, 0x00, 0x0f, 0x07, 0x00, 0xff}},
	{PowerL1, [6]byte{0x01, 0x00, 0x23, 0x07, 0x00, 0xff}},
	{PowerL2, [6]byte{0x01, 0x00, 0x37, 0x07, 0x00, 0xff}},
	{PowerL3, [6]byte{0x01, 0x00, 0x4b, 0x07, 0x00, 0xff}},
	{CurrentNeutral, [6]byte{0x01, 0x00, 0x5b, 0x07, 0x00, 0xff}},
	{CurrentL1, [6]byte{0x01, 0x00, 0x1f, 0x07, 0x00, 0xff}},
	{CurrentL2, [6]byte{0x01, 0x00, 0x33, 0x07, 0x00, 0xff}},
	{CurrentL3, [6]byte{0x01, 0x00, 0x47, 0x07, 0x00, 0xff}},
	{VoltageL1, [6]byte{0x01, 0x00, 0x20, 0x07, 0x00, 0xff}},
	{VoltageL2, [6]byte{0x01, 0x00, 0x34, 0x07, 0x00, 0xff}},
	{VoltageL3, [6]byte{0x01, 0x00, 0x48, 0x07, 0x00, 0xff}},
	{PhaseAngleVoltageL2L1, [6]byte{0x01, 0x00, 0x51, 0x07, 0x01, 0xff}},
	{PhaseAngleVoltageL3L1, [6]byte{0x01, 0x00, 0x51, 0x07, 0x02, 0xff}},
	{PhaseAngleCurrentVoltageL1, [6]byte{0x01, 0x00, 0x51, 0x07, 0x04, 0xff}},
	{PhaseAngleCurrentVoltageL2, [6]byte{0x01, 0x00, 0x51, 0x07, 0x0f, 0xff}},
	{PhaseAngleCurrentVoltageL3, [6]byte{0x01, 0x00, 0x51, 0x07, 0x1a, 0xff}},
}

// LookupOBIS finds the variable slot for a six-byte OBIS identifier. ok is
// false when the identifier isn't one this agent understands (common for
// meters that expose extra vendor-specific OBIS entries we don't need).
func LookupOBIS(obis [6]byte) (id VarID, ok bool) {
	for _, e := range OBISTable {
		if e.OBIS == obis {
			return e.ID, true
		}
	}
	return 0, false
}

// Measurement holds one sampled reading across all seventeen slots. A slot
// left unfilled by the source (no OBIS entry found, or the pipe line had too
// few fields) carries missingValue (-1) so callers can distinguish "zero"
// from "missing".
type Measurement struct {
	Values [NumVariables]float64
}

// missingValue marks a slot that has not been filled in by a producer yet,
// matching the -1 sentinel the stdout "differences-only" mode already
// treats as absent.
const missingValue = -1

// New returns a Measurement with every slot set to missingValue, ready to
// be filled in by a producer.
func New() Measurement {
	var m Measurement
	for i := range m.Values {
		m.Values[i] = missingValue
	}
	return m
}

// Filled reports how many of the non-timestamp slots carry a real value.
// The SML client uses this to decide whether a response was complete enough
// to publish.
func (m Measurement) Filled() int {
	n := 0
	for i := PowerAllPhases; i < NumVariables; i++ {
		if m.Values[i] != missingValue {
			n++
		}
	}
	return n
}

// Envelope is the exact nineteen-key JSON payload uploaded for a single
// measurement. Field order matches the struct field order because
// encoding/json always serializes struct fields in declaration order,
// regardless of map iteration concerns elsewhere in the agent.
type Envelope struct {
	PowerAllPhases                 json.Number `json:"powerAllPhases"`
	PowerL1                        json.Number `json:"powerL1"`
	PowerL2                        json.Number `json:"powerL2"`
	PowerL3                        json.Number `json:"powerL3"`
	CurrentNeutral                 json.Number `json:"currentNeutral"`
	CurrentL1                      json.Number `json:"currentL1"`
	CurrentL2                      json.Number `json:"currentL2"`
	CurrentL3                      json.Number `json:"currentL3"`
	VoltageL1                      json.Number `json:"voltageL1"`
	VoltageL2                      json.Number `json:"voltageL2"`
	VoltageL3                      json.Number `json:"voltageL3"`
	PhaseAngleVoltageL2L1          json.Number `json:"phaseAngleVoltageL2L1"`
	PhaseAngleVoltageL3L1          json.Number `json:"phaseAngleVoltageL3L1"`
	PhaseAngleCurrentVoltageL1     json.Number `json:"phaseAngleCurrentVoltageL1"`
	PhaseAngleCurrentVoltageL2     json.Number `json:"phaseAngleCurrentVoltageL2"`
	PhaseAngleCurrentVoltageL3     json.Number `json:"phaseAngleCurrentVoltageL3"`
	CreatedOn                      json.Number `json:"createdOn"`
	SmartMeterID                   int         `json:"smartMeterId"`
	SmartMeterToken                string      `json:"smartMeterToken"`
}

// fixed4 formats v with exactly four decimal places, matching the wire
// format the upload endpoint expects for every numeric field. A slot that
// was never filled by the producer reports as 0, not as the internal
// missingValue sentinel.
func fixed4(v float64) json.Number {
	if v == missingValue {
		v = 0
	}
	return json.Number(fmt.Sprintf("%.4f", v))
}

// ToEnvelope builds the upload payload for this measurement. createdOn is
// the measurement's own timestamp slot (seconds since the Unix epoch), not
// the wall-clock time at upload, matching the original collector's
// "createdOn" semantics.
func (m Measurement) ToEnvelope(smartMeterToken string) Envelope {
	return Envelope{
		PowerAllPhases:             fixed4(m.Values[PowerAllPhases]),
		PowerL1:                    fixed4(m.Values[PowerL1]),
		PowerL2:                    fixed4(m.Values[PowerL2]),
		PowerL3:                    fixed4(m.Values[PowerL3]),
		CurrentNeutral:             fixed4(m.Values[CurrentNeutral]),
		CurrentL1:                  fixed4(m.Values[CurrentL1]),
		CurrentL2:                  fixed4(m.Values[CurrentL2]),
		CurrentL3:                  fixed4(m.Values[CurrentL3]),
		VoltageL1:                  fixed4(m.Values[VoltageL1]),
		VoltageL2:                  fixed4(m.Values[VoltageL2]),
		VoltageL3:                  fixed4(m.Values[VoltageL3]),
		PhaseAngleVoltageL2L1:      fixed4(m.Values[PhaseAngleVoltageL2L1]),
		PhaseAngleVoltageL3L1:      fixed4(m.Values[PhaseAngleVoltageL3L1]),
		PhaseAngleCurrentVoltageL1: fixed4(m.Values[PhaseAngleCurrentVoltageL1]),
		PhaseAngleCurrentVoltageL2: fixed4(m.Values[PhaseAngleCurrentVoltageL2]),
		PhaseAngleCurrentVoltageL3: fixed4(m.Values[PhaseAngleCurrentVoltageL3]),
		CreatedOn:                  json.Number(fmt.Sprintf("%.0f", m.Values[Timestamp])),
		SmartMeterID:               1,
		SmartMeterToken:            smartMeterToken,
	}
}
