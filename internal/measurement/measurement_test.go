package measurement

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestLookupOBISKnownEntry(t *testing.T) {
	id, ok := LookupOBIS([6]byte{0x01, 0x00, 0x0f, 0x07, 0x00, 0xff})
	if !ok {
		t.Fatalf("expected POWER_ALL_PHASES OBIS entry to be found")
	}
	if id != PowerAllPhases {
		t.Fatalf("want PowerAllPhases, got %v", id)
	}
}

func TestLookupOBISUnknownEntry(t *testing.T) {
	_, ok := LookupOBIS([6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00})
	if ok {
		t.Fatalf("did not expect an unknown OBIS identifier to resolve")
	}
}

func TestOBISTableHasSixteenEntries(t *testing.T) {
	if len(OBISTable) != 16 {
		t.Fatalf("want 16 OBIS entries, got %d", len(OBISTable))
	}
}

func TestNewMeasurementStartsAllSlotsMissing(t *testing.T) {
	m := New()
	if m.Filled() != 0 {
		t.Fatalf("fresh measurement should have zero filled slots, got %d", m.Filled())
	}
}

func TestFilledCountsOnlyNonTimestampSlots(t *testing.T) {
	m := New()
	m.Values[Timestamp] = 123
	m.Values[PowerAllPhases] = 42.0
	m.Values[VoltageL1] = 230.0

	if got := m.Filled(); got != 2 {
		t.Fatalf("want 2 filled slots, got %d", got)
	}
}

func TestEnvelopeHasExactlyNineteenKeysInOrder(t *testing.T) {
	m := New()
	m.Values[PowerAllPhases] = 1000.1234
	m.Values[Timestamp] = 1700000000

	env := m.ToEnvelope("token-123")
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	wantOrder := []string{
		"powerAllPhases", "powerL1", "powerL2", "powerL3",
		"currentNeutral", "currentL1", "currentL2", "currentL3",
		"voltageL1", "voltageL2", "voltageL3",
		"phaseAngleVoltageL2L1", "phaseAngleVoltageL3L1",
		"phaseAngleCurrentVoltageL1", "phaseAngleCurrentVoltageL2", "phaseAngleCurrentVoltageL3",
		"createdOn", "smartMeterId", "smartMeterToken",
	}

	s := string(raw)
	lastIdx := -1
	for _, key := range wantOrder {
		idx := strings.Index(s, `"`+key+`"`)
		if idx == -1 {
			t.Fatalf("missing key %q in envelope JSON: %s", key, s)
		}
		if idx < lastIdx {
			t.Fatalf("key %q appeared out of order in %s", key, s)
		}
		lastIdx = idx
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded) != 19 {
		t.Fatalf("want 19 keys, got %d: %s", len(decoded), s)
	}
}

func TestEnvelopeNumericFieldsHaveFourDecimalPlaces(t *testing.T) {
	m := New()
	m.Values[VoltageL1] = 230.5

	env := m.ToEnvelope("tok")
	if env.VoltageL1 != "230.5000" {
		t.Fatalf("want 230.5000, got %s", env.VoltageL1)
	}
}

func TestEnvelopeSmartMeterIDIsAlwaysOne(t *testing.T) {
	m := New()
	env := m.ToEnvelope("tok")
	if env.SmartMeterID != 1 {
		t.Fatalf("want smartMeterId 1, got %d", env.SmartMeterID)
	}
}

func TestEnvelopeUnfilledSlotsDefaultToZero(t *testing.T) {
	m := New()
	m.Values[PowerAllPhases] = 100.0

	env := m.ToEnvelope("tok")
	if env.CurrentNeutral != "0.0000" {
		t.Fatalf("want unfilled currentNeutral to default to 0.0000, got %s", env.CurrentNeutral)
	}
	if env.VoltageL1 != "0.0000" {
		t.Fatalf("want unfilled voltageL1 to default to 0.0000, got %s", env.VoltageL1)
	}
}

func TestEnvelopeCreatedOnEqualsMeasurementTimestamp(t *testing.T) {
	for _, sec := range []float64{1, 2, 3} {
		m := New()
		m.Values[Timestamp] = sec

		env := m.ToEnvelope("tok")
		want := json.Number(fmt.Sprintf("%.0f", sec))
		if env.CreatedOn != want {
			t.Fatalf("want createdOn %s for timestamp %v, got %s", want, sec, env.CreatedOn)
		}
	}
}
