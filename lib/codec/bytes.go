// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Bytes is a []byte wire field that also decodes from a base64 text
// string. CBOR-native peers send byte strings; JSON-bridging clients
// (cloister-call) have no byte type in JSON and deliver byte
// arguments as standard-encoding base64 text. Encoding always
// produces a byte string.
//
// Use Bytes instead of []byte in any argument type a JSON client may
// supply.
type Bytes []byte

var _ cbor.Unmarshaler = (*Bytes)(nil)

func (b *Bytes) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := decMode.Unmarshal(data, &raw); err == nil {
		*b = raw
		return nil
	}

	var text string
	if err := decMode.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("codec: value is neither a byte string nor a text string")
	}
	decoded, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fmt.Errorf("codec: decoding base64 text string: %w", err)
	}
	*b = decoded
	return nil
}
