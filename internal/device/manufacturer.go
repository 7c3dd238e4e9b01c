package device

import (
	"encoding/binary"
	"fmt"
)

// companyNames maps Bluetooth SIG company identifiers seen around the target
// to vendor names.
var companyNames = map[uint16]string{
	0x0006: "Microsoft",
	0x004C: "Apple",
	0x0075: "Samsung",
	0x00E0: "Google",
}

// CompanyID extracts the company identifier from manufacturer-specific
// advertising data (first 2 bytes, little-endian).
func CompanyID(data []byte) (uint16, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[0:2]), true
}

// DescribeManufacturer renders the vendor of manufacturer data, e.g.
// "Apple (0x004c)". Unknown vendors show the identifier only; data too short
// to carry one yields "".
func DescribeManufacturer(data []byte) string {
	id, ok := CompanyID(data)
	if !ok {
		return ""
	}
	if name, known := companyNames[id]; known {
		return fmt.Sprintf("%s (0x%04x)", name, id)
	}
	return fmt.Sprintf("0x%04x", id)
}
