// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package title

import "fmt"

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders a byte count with two decimals and a binary unit,
// for example "2.45 GB". Non-positive sizes render as an empty string so
// unknown sizes stay blank in output records.
func FormatBytes(n int64) string {
	if n <= 0 {
		return ""
	}

	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[unit])
}
