package archive

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/fogtimer/internal/trial"
)

// documentVersion is the current archive document format.
const documentVersion = 1

// document is the persisted archive form.
type document struct {
	Version int           `json:"version"`
	Trials  []trial.Trial `json:"trials"`
}

// marshalTrials encodes trials as an archive document.
// HTML escaping is disabled so patient ids and labels round-trip verbatim.
func marshalTrials(trials []trial.Trial) ([]byte, error) {
	if trials == nil {
		trials = []trial.Trial{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(document{Version: documentVersion, Trials: trials}); err != nil {
		return nil, fmt.Errorf("marshal archive: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// unmarshalTrials decodes an archive document and validates every trial.
//
// A bare JSON array of trials is accepted as the legacy format. Trials
// written before ids or next_freeze_id existed get them derived.
func unmarshalTrials(data []byte) ([]trial.Trial, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var trials []trial.Trial
	if data[0] == '[' {
		if err := json.Unmarshal(data, &trials); err != nil {
			return nil, fmt.Errorf("unmarshal legacy archive: %w", err)
		}
	} else {
		var doc document
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("unmarshal archive: %w", err)
		}
		if doc.Version != documentVersion {
			return nil, fmt.Errorf("unmarshal archive: unsupported version %d", doc.Version)
		}
		trials = doc.Trials
	}

	seen := make(map[string]bool, len(trials))
	for i := range trials {
		t := &trials[i]
		if t.NextFreezeID == 0 {
			t.NextFreezeID = nextFreezeID(t.FreezeEvents)
		}
		if t.FreezeEvents == nil {
			t.FreezeEvents = []trial.FreezeEvent{}
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("legacy-%d", i+1)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("trial %d: duplicate id %q", i, t.ID)
		}
		seen[t.ID] = true
	}
	return trials, nil
}

func nextFreezeID(events []trial.FreezeEvent) int {
	next := 1
	for _, ev := range events {
		if ev.ID >= next {
			next = ev.ID + 1
		}
	}
	return next
}
