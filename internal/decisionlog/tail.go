package decisionlog

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
)

// TailResult is what was appended to the log since an offset
type TailResult struct {
	Events []models.DecisionEvent
	// NextOffset is the byte position after the last complete line read
	NextOffset int64
	// Malformed counts complete lines that did not decode
	Malformed int
	// Reset is set when the log was shorter than the offset and reading restarted at 0
	Reset bool
}

// Tail reads every complete line appended to path after offset. A trailing line
// without its newline is left for the next call. A missing log yields no events.
func Tail(path string, offset int64) (TailResult, error) {
	res := TailResult{NextOffset: offset}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, errors.Wrapf(err, "open decision log %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return res, errors.Wrapf(err, "stat decision log %s", path)
	}

	// Step 1: detect rotation or truncation
	if info.Size() < offset {
		offset = 0
		res.Reset = true
		res.NextOffset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return res, errors.Wrapf(err, "seek decision log to %d", offset)
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return res, errors.Wrap(err, "read decision log")
	}

	// Step 2: keep complete lines only
	end := bytes.LastIndexByte(chunk, '\n')
	if end < 0 {
		return res, nil
	}
	chunk = chunk[:end+1]
	res.NextOffset = offset + int64(len(chunk))

	// Step 3: decode, skipping blank and malformed lines
	for _, line := range bytes.Split(chunk, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e models.DecisionEvent
		if err := json.Unmarshal(line, &e); err != nil {
			res.Malformed++
			continue
		}
		res.Events = append(res.Events, e)
	}

	return res, nil
}
