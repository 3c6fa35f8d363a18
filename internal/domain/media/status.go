package media

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// CanTransition reports whether a file record may move from one processing
// status to another. Status only moves forward and terminal states are final.
func CanTransition(from, to ProcessingStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the lifecycle; both terminal states share a rank.
func (s ProcessingStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func CanTransitionJob(from, to JobStatus) bool {
	switch from {
	case JobQueued:
		return to == JobProcessing || to == JobFailed
	case JobProcessing:
		return to == JobCompleted || to == JobFailed
	default:
		return false
	}
}

func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobProcessing
}

type Projection string

const (
	ProjectionEquirectangular Projection = "equirectangular"
	ProjectionCubemap         Projection = "cubemap"
	ProjectionFisheye         Projection = "fisheye"
	ProjectionNone            Projection = "none"
)
