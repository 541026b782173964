// debug_decode decodes manufacturer payloads given as hex strings.
//
// Without arguments a few captured sample payloads are decoded.
//
// Usage:
//
//	go run ./cmd/debug_decode [HEX_PAYLOAD...]
//
// Example:
//
//	go run ./cmd/debug_decode 0719010e202b750330
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"budwatch/internal/ble"
)

// Apple manufacturer payloads (after the 0x004C company ID)
var samples = []string{
	// Proximity pairing, 27 bytes
	"0719012720 0b998f1100 0563fcfbb4 39011c61e7 e4aa95832c 5b57",
	"0719012720 55aab03900 004434e2ff f0d91bc448 adab2f382c 5a39",
	// Minimal 9 byte payload: left 70%, right 50%, case 30%, both charging
	"0719010e20 2b750330",
	// Too short
	"0719010e20",
}

func main() {
	payloads := os.Args[1:]
	if len(payloads) == 0 {
		payloads = samples
	}

	for _, p := range payloads {
		data, err := hex.DecodeString(strings.ReplaceAll(p, " ", ""))
		if err != nil {
			fmt.Printf("%s: invalid hex: %v\n\n", p, err)
			continue
		}

		fmt.Printf("Payload (%d bytes): % x\n", len(data), data)
		reading, err := ble.Decode(data)
		if err != nil {
			fmt.Printf("  Decode failed: %v\n\n", err)
			continue
		}

		showStatusBytes(data)
		fmt.Println(reading.String())
		fmt.Println()
	}
}

// showStatusBytes shows the bytes the decoder reads
func showStatusBytes(data []byte) {
	b := data[6]
	fmt.Printf("  Byte 6 (Battery):  0x%02X (nibbles: left=0x%X, right=0x%X)\n", b, b>>4, b&0x0F)
	fmt.Printf("  Byte 7 (Case):     0x%02X (nibble: 0x%X)\n", data[7], data[7]&0x0F)
	fmt.Printf("  Byte 8 (Charging): 0x%02X (%08b)\n", data[8], data[8])
}
