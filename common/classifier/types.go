package classifier

// FeatureExplicitContent is the only analysis feature requested
const FeatureExplicitContent = "EXPLICIT_CONTENT_DETECTION"

// Frame is one analyzed time segment of a video
type Frame struct {
	TimeOffsetMs int64      `json:"time_offset_ms"`
	Likelihood   Likelihood `json:"likelihood"`
}

// Verdict is the resolved moderation outcome for one blob
type Verdict struct {
	JobID          string     `json:"job_id"`
	Flagged        bool       `json:"flagged"`
	MaxLikelihood  Likelihood `json:"max_likelihood"`
	FramesAnalyzed int        `json:"frames_analyzed"`
}

// JobStatus is a snapshot of an asynchronous classification job
type JobStatus struct {
	JobID  string    `json:"job_id"`
	Done   bool      `json:"done"`
	Error  *JobError `json:"error,omitempty"`
	Frames []Frame   `json:"frames,omitempty"`
}

// JobError is the failure reported by the classifier for a finished job
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type submitRequest struct {
	InputURI string   `json:"input_uri"`
	Features []string `json:"features"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

func maxLikelihood(frames []Frame) Likelihood {
	highest := Unknown
	for _, f := range frames {
		if f.Likelihood > highest {
			highest = f.Likelihood
		}
	}
	return highest
}
