// Package runcontrol overlays run-control limits onto the blocks they belong to.
package runcontrol

import (
	"dataweb-backend/internal/reading"
	"strings"
)

const marker = "RC"

// Split separates run-control readings (named `<block>:RC:<SUFFIX>`) from ordinary ones.
func Split(set reading.Set) (ordinary, runControl reading.Set) {
	ordinary = make(reading.Set, len(set))
	runControl = make(reading.Set)
	for name, r := range set {
		parts := strings.Split(name, ":")
		if len(parts) == 3 && parts[1] == marker {
			runControl[name] = r
			continue
		}
		ordinary[name] = r
	}
	return ordinary, runControl
}

// Merge returns a copy of blocks where every block has the run-control fields found for it in
// runControl. Entries for unknown blocks or with unknown suffixes are ignored, and a block with
// no entries keeps every field absent.
func Merge(blocks, runControl reading.Set) reading.Set {
	out := make(reading.Set, len(blocks))
	for name, block := range blocks {
		out[name] = block
	}

	for key, rc := range runControl {
		parts := strings.Split(key, ":")
		if len(parts) < 2 {
			continue
		}
		blockName := strings.TrimSpace(parts[0])
		block, ok := out[blockName]
		if !ok {
			continue
		}

		value := rc.Value
		switch parts[len(parts)-1] {
		case "LOW.VAL":
			block.RunControl.Low = &value
		case "HIGH.VAL":
			block.RunControl.High = &value
		case "INRANGE.VAL":
			block.RunControl.InRange = &value
		case "ENABLE.VAL":
			block.RunControl.Enabled = &value
		default:
			continue
		}
		out[blockName] = block
	}
	return out
}
