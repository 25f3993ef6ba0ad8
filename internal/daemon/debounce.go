package daemon

import "time"

// deleteGrace is the shortest wait before a delete is confirmed, even with
// debouncing disabled. Editors that save by moving the old file away report
// a delete just before the new file appears.
const deleteGrace = 250 * time.Millisecond

// Delays sizes the debounce window by workbook size. Rewriting a large
// workbook takes longer, and re-reading it too soon risks seeing a
// half-written file.
type Delays struct {
	// Base is the delay for small workbooks. Zero disables debouncing
	// entirely, whatever the workbook size.
	Base time.Duration

	MediumThreshold int64
	MediumFloor     time.Duration
	LargeThreshold  int64
	LargeFloor      time.Duration
}

// For returns the debounce delay for a workbook of size bytes.
func (d Delays) For(size int64) time.Duration {
	if d.Base <= 0 {
		return 0
	}
	delay := d.Base
	if d.MediumThreshold > 0 && size > d.MediumThreshold {
		delay = max(delay, d.MediumFloor)
	}
	if d.LargeThreshold > 0 && size > d.LargeThreshold {
		delay = max(delay, d.LargeFloor)
	}
	return delay
}
