package goble

import (
	"strings"

	"github.com/go-ble/ble"
)

var propertyNames = []struct {
	value ble.Property
	name  string
}{
	{ble.CharBroadcast, "broadcast"},
	{ble.CharRead, "read"},
	{ble.CharWriteNR, "write_without_response"},
	{ble.CharWrite, "write"},
	{ble.CharNotify, "notify"},
	{ble.CharIndicate, "indicate"},
	{ble.CharSignedWrite, "signed_write"},
	{ble.CharExtended, "extended"},
}

// describeProperties renders property flags as a comma-separated list
func describeProperties(p ble.Property) string {
	var names []string
	for _, prop := range propertyNames {
		if p&prop.value != 0 {
			names = append(names, prop.name)
		}
	}
	return strings.Join(names, ",")
}

func canRead(p ble.Property) bool {
	return p&ble.CharRead != 0
}

// canWrite reports whether the requested write mode is supported
func canWrite(p ble.Property, withResponse bool) bool {
	if withResponse {
		return p&ble.CharWrite != 0
	}
	return p&ble.CharWriteNR != 0
}
