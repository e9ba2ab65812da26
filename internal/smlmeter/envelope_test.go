package smlmeter

import "testing"

func TestBuildRequestProducesThreeWellFormedMessages(t *testing.T) {
	req := BuildRequest()

	offset := 0
	count := 0
	for offset < len(req) {
		n, consumed, err := decodeEntity(req[offset:])
		if err != nil {
			t.Fatalf("message %d failed to decode: %v", count, err)
		}
		if n.Type != typeList || len(n.Children) != 6 {
			t.Fatalf("message %d: got %+v, want a 6-element list", count, n)
		}
		offset += consumed
		count++
	}

	if count != 3 {
		t.Fatalf("got %d messages, want 3", count)
	}
}

func TestBuildRequestBodyTagsAreInOrder(t *testing.T) {
	req := BuildRequest()

	wantTags := []uint32{tagOpenRequest, tagGetProcParameterRequest, tagCloseRequest}
	offset := 0
	for i, want := range wantTags {
		n, consumed, err := decodeEntity(req[offset:])
		if err != nil {
			t.Fatalf("message %d failed to decode: %v", i, err)
		}
		bodyChoice := n.Children[3]
		got := uint32(bodyChoice.Children[0].Int())
		if got != want {
			t.Fatalf("message %d: got tag %x, want %x", i, got, want)
		}
		offset += consumed
	}
}

// buildSyntheticResponse hand-assembles a single GetProcParameterResponse
// message containing one period entry, mimicking the shape a real meter's
// reply takes, to exercise ParseResponse without a live meter.
func buildSyntheticResponse(obis [6]byte, scaler int8, value uint8) []byte {
	periodEntry := append([]byte{}, encodeList(5)...)
	periodEntry = append(periodEntry, encodeOctetString(obis[:])...)
	periodEntry = append(periodEntry, 0x00) // unit, absent
	periodEntry = append(periodEntry, encodeLeaf(typeInteger, []byte{byte(scaler)})...)
	periodEntry = append(periodEntry, encodeUnsigned(value)...)
	periodEntry = append(periodEntry, 0x00) // valueSignature, absent

	paramValue := append([]byte{}, encodeList(2)...)
	paramValue = append(paramValue, encodeUnsigned(2)...) // SML_PROC_PAR_VALUE_TAG_PERIOD_ENTRY
	paramValue = append(paramValue, periodEntry...)

	child := append([]byte{}, encodeList(3)...)
	child = append(child, encodeOctetString(obis[:])...)
	child = append(child, paramValue...)
	child = append(child, 0x00) // no grandchildren

	childList := append([]byte{}, encodeList(1)...)
	childList = append(childList, child...)

	tree := append([]byte{}, encodeList(3)...)
	tree = append(tree, encodeOctetString([]byte("root"))...)
	tree = append(tree, 0x00) // root carries no value itself
	tree = append(tree, childList...)

	body := append([]byte{}, encodeList(4)...)
	body = append(body, encodeOctetString(serverIDWild)...)
	body = append(body, 0x00) // username, absent
	body = append(body, 0x00) // parameterTreePath, absent
	body = append(body, tree...)

	return buildMessage("1", 1, tagGetProcParameterResponse, body)
}

func TestParseResponseExtractsPeriodEntry(t *testing.T) {
	obis := [6]byte{0x01, 0x00, 0x0f, 0x07, 0x00, 0xff} // PowerAllPhases
	msg := buildSyntheticResponse(obis, -1, 123)

	entries, err := ParseResponse(msg)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.OBIS != obis {
		t.Fatalf("got obis %x, want %x", e.OBIS, obis)
	}
	if e.Scaler != -1 {
		t.Fatalf("got scaler %d, want -1", e.Scaler)
	}
	if e.Value != 123 {
		t.Fatalf("got value %d, want 123", e.Value)
	}
}

func TestParseResponseIgnoresNonGetProcParameterResponseMessages(t *testing.T) {
	msg := buildMessage("1", 1, tagOpenRequest, buildOpenRequest())

	entries, err := ParseResponse(msg)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}
