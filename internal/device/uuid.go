package device

import (
	"fmt"
	"strings"
)

// Control profile UUIDs advertised and exposed by compatible peripherals
const (
	ControlServiceUUID        = "6f59f19e-2f39-49de-8525-5d2045f4d999"
	ControlCharacteristicUUID = "a9bf2905-ee69-4baa-8960-4358a9e3a558"
)

// sigBaseSuffix is the Bluetooth SIG base UUID tail shared by all 16-bit assigned numbers.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips a 0x prefix if present. For full 128-bit UUIDs in Bluetooth SIG base format
// (0000xxxx-0000-1000-8000-00805f9b34fb), extracts the 16-bit short form (xxxx).
// Returns "" when the input is not a hex UUID of 4, 8 or 32 digits.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}

	switch len(s) {
	case 4:
		return s
	case 8:
		if strings.HasPrefix(s, "0000") {
			return s[4:]
		}
		return s
	case 32:
		if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
			return s[4:8]
		}
		return s
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings, dropping invalid entries
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	result := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if n := NormalizeUUID(u); n != "" {
			result = append(result, n)
		}
	}
	return result
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// NormalizeAddress returns the canonical upper-case form of a device address
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// HasService reports whether any of the advertised services matches one of the wanted UUIDs.
// Both sides are normalized before comparison. An empty wanted list matches everything.
func HasService(advertised []string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		nw := NormalizeUUID(w)
		for _, a := range advertised {
			if NormalizeUUID(a) == nw {
				return true
			}
		}
	}
	return false
}
