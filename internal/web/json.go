package web

import (
	"encoding/json"

	"github.com/voxel8/interlockd/internal/journal"
)

// FaultsJSON is the JSON representation of the fault journal.
type FaultsJSON struct {
	Faults []journal.Entry `json:"faults"`
}

func formatFaults(entries []journal.Entry) []byte {
	if entries == nil {
		entries = []journal.Entry{}
	}
	data, _ := json.MarshalIndent(FaultsJSON{Faults: entries}, "", "  ")
	return data
}
