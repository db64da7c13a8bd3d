package video

// Progress is reported to observers as the scan advances.
type Progress struct {
	FramesProcessed int64
	TotalEstimate   int64
	Events          int
}

// ProgressFunc observes scan progress. Observers are invoked from the
// pipeline and must not block.
type ProgressFunc func(Progress)
