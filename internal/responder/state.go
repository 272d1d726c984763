package responder

import (
	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
	"github.com/ethanolivertroy/riskflow/internal/models"
)

// LoadState reads the persisted offset. A missing or corrupt file starts at 0.
func LoadState(path string) models.ResponderState {
	var s models.ResponderState
	if !jsonfile.Load(path, &s) || s.Offset < 0 {
		return models.ResponderState{}
	}
	return s
}

// SaveState atomically persists the offset
func SaveState(path string, s models.ResponderState) error {
	return jsonfile.Write(path, s)
}
