package trace

import (
	"bufio"
	"encoding/json"
	"os"
)

// WriteFile writes events as one JSON object per line, the format the
// visualizer ingests.
func WriteFile(path string, events []Event) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return w.Flush()
}
