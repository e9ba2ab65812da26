package smlmeter

import "fmt"

// SML message body tags this client sends or recognizes. Values match the
// well-known SML message type registry; everything this agent doesn't
// itself send or need to decode is left out.
const (
	tagOpenRequest              = 0x00000100
	tagCloseRequest             = 0x00000200
	tagGetProcParameterRequest  = 0x00000500
	tagGetProcParameterResponse = 0x00000501
)

// fixed identifiers matching the original tool's request, which every
// meter following this convention accepts regardless of its own serial
// number -- the meter replies according to server_id, not client_id.
var (
	clientID      = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	reqFileID     = []byte{0x51}
	serverIDWild  = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	procParamPath = []byte{0x81, 0x81, 0xc7, 0x85, 0x01, 0xff}
)

// encodeTag encodes a four-byte message body tag as an SML Unsigned32.
func encodeTag(tag uint32) []byte {
	return encodeLeaf(typeUnsigned, []byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)})
}

// buildMessage wraps a message body choice (tag + body bytes) with the
// transaction id / group / abort-on-error envelope every SML message
// carries, followed by a placeholder CRC and the end-of-message marker.
// The CRC is not meaningfully checked by the meters this agent targets
// (this is a request we send, not a signed response we must validate), so
// it is filled with zero rather than computed over the whole message.
func buildMessage(transactionID string, groupNo byte, tag uint32, body []byte) []byte {
	var buf []byte

	buf = append(buf, encodeOctetString([]byte(transactionID))...)
	buf = append(buf, encodeUnsigned(groupNo)...)
	buf = append(buf, encodeUnsigned(0)...) // abort_on_error = false

	bodyChoice := append([]byte{}, encodeList(2)...)
	bodyChoice = append(bodyChoice, encodeTag(tag)...)
	bodyChoice = append(bodyChoice, body...)
	buf = append(buf, bodyChoice...)

	buf = append(buf, encodeUnsigned(0)...) // crc16 placeholder
	buf = append(buf, 0x00)                 // end of message

	msg := append(encodeList(6), buf...)
	return msg
}

// buildOpenRequest builds the OpenRequest body: client_id, req_file_id and
// server_id exactly as the original tool sent them, the rest left absent.
func buildOpenRequest() []byte {
	body := append([]byte{}, encodeList(7)...)
	body = append(body, 0x00)                           // codepage, absent
	body = append(body, encodeOctetString(clientID)...) // client_id
	body = append(body, encodeOctetString(reqFileID)...)
	body = append(body, encodeOctetString(serverIDWild)...)
	body = append(body, 0x00) // username, absent
	body = append(body, 0x00) // password, absent
	body = append(body, 0x00) // sml-version, absent
	return body
}

// buildGetProcParameterRequest requests the full load profile tree under
// the OBIS path the original tool used (8181C78501FF).
func buildGetProcParameterRequest() []byte {
	body := append([]byte{}, encodeList(5)...)
	body = append(body, encodeOctetString(serverIDWild)...)
	body = append(body, 0x00) // username, absent
	body = append(body, 0x00) // password, absent
	body = append(body, 0x00) // attribute, absent

	path := append([]byte{}, encodeList(1)...)
	path = append(path, encodeOctetString(procParamPath)...)
	body = append(body, path...)
	return body
}

// buildCloseRequest builds the (empty) CloseRequest body.
func buildCloseRequest() []byte {
	body := append([]byte{}, encodeList(1)...)
	body = append(body, 0x00) // global signature, absent
	return body
}

// BuildRequest assembles the three-message OpenRequest /
// GetProcParameterRequest / CloseRequest envelope this agent sends for
// every sample, ready to be wrapped in transport framing by frame.
func BuildRequest() []byte {
	var out []byte
	out = append(out, buildMessage("1", 1, tagOpenRequest, buildOpenRequest())...)
	out = append(out, buildMessage("2", 2, tagGetProcParameterRequest, buildGetProcParameterRequest())...)
	out = append(out, buildMessage("3", 3, tagCloseRequest, buildCloseRequest())...)
	return out
}

// periodEntry is one decoded SML_PeriodEntry: an OBIS-tagged, scaled
// numeric reading.
type periodEntry struct {
	OBIS   [6]byte
	Scaler int8
	Value  int64
}

// ParseResponse decodes the raw SML message stream (already stripped of
// transport framing) into the period entries found anywhere in the
// response's parameter tree. Every message that isn't a
// GetProcParameterResponse is skipped, matching the original client, which
// only ever cared about that one message in the reply.
func ParseResponse(buf []byte) ([]periodEntry, error) {
	var entries []periodEntry

	offset := 0
	for offset < len(buf) {
		msg, consumed, err := decodeEntity(buf[offset:])
		if err != nil {
			return entries, fmt.Errorf("smlmeter: decode message: %w", err)
		}
		offset += consumed

		if msg.Type != typeList || len(msg.Children) < 4 {
			continue
		}

		bodyChoice := msg.Children[3]
		if bodyChoice.Type != typeList || len(bodyChoice.Children) < 2 {
			continue
		}

		tag := uint32(bodyChoice.Children[0].Int())
		if tag != tagGetProcParameterResponse {
			continue
		}

		body := bodyChoice.Children[1]
		if body.Type != typeList || len(body.Children) < 4 {
			continue
		}

		tree := body.Children[3]
		walkTree(tree, &entries)
	}

	return entries, nil
}

// walkTree recursively collects period entries from an SML_Tree node and
// all of its children, exactly as the original client's recursive tree
// walk did.
func walkTree(tree node, out *[]periodEntry) {
	if tree.Type != typeList || len(tree.Children) < 3 {
		return
	}

	value := tree.Children[1]
	if value.Type == typeList && len(value.Children) == 2 {
		if ppTag := value.Children[0].Int(); ppTag == 2 { // SML_PROC_PAR_VALUE_TAG_PERIOD_ENTRY
			if entry, ok := decodePeriodEntry(value.Children[1]); ok {
				*out = append(*out, entry)
			}
		}
	}

	childList := tree.Children[2]
	if childList.Type == typeList {
		for _, child := range childList.Children {
			walkTree(child, out)
		}
	}
}

// decodePeriodEntry reads objName/scaler/value out of an SML_PeriodEntry
// list node.
func decodePeriodEntry(n node) (periodEntry, bool) {
	if n.Type != typeList || len(n.Children) < 4 {
		return periodEntry{}, false
	}

	objName := n.Children[0]
	if len(objName.Data) != 6 {
		return periodEntry{}, false
	}

	var entry periodEntry
	copy(entry.OBIS[:], objName.Data)

	scalerNode := n.Children[2]
	if len(scalerNode.Data) > 0 {
		entry.Scaler = int8(scalerNode.Int())
	}

	entry.Value = n.Children[3].Int()
	return entry, true
}
