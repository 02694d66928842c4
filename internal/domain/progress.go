package domain

// Stage names one observable step of statement processing.
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageValidating  Stage = "validating"
	StageExtracting  Stage = "extracting"
	StageParsing     Stage = "parsing"
	StageMatching    Stage = "matching"
	StageSaving      Stage = "saving"
	StageCompleted   Stage = "completed"

	// StageFetch attributes errors raised while loading and claiming an upload.
	// It is never emitted as progress.
	StageFetch Stage = "fetch"
)

// ProcessingProgress is one entry of a processing log.
type ProcessingProgress struct {
	Step    Stage  `json:"step"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}
