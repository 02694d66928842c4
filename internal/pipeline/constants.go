package pipeline

import "time"

// Progress percentages reported when each stage starts.
const (
	percentDownloading = 10
	percentValidating  = 20
	percentExtracting  = 30
	percentParsing     = 50
	percentMatching    = 60
	percentMatchingMax = 89
	percentSaving      = 90
	percentCompleted   = 100
)

const (
	// DefaultProgressBuffer is the number of progress events queued for a slow observer.
	DefaultProgressBuffer = 64

	// DefaultFlushTimeout bounds how long Process waits for queued events to be delivered.
	DefaultFlushTimeout = 2 * time.Second

	// DefaultDateToleranceDays widens the ledger query around the statement period.
	DefaultDateToleranceDays = 3

	// maxErrorLength matches the column limit for persisted error messages.
	maxErrorLength = 2000
)

var pdfMagic = []byte("%PDF-")
