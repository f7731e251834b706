package domain

type ProcessingStage string

const (
	StageUploading   ProcessingStage = "uploading"
	StageParsing     ProcessingStage = "parsing"
	StageVectorizing ProcessingStage = "vectorizing"
	StageCompleted   ProcessingStage = "completed"
	StageError       ProcessingStage = "error"
)

func (s ProcessingStage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// ProcessingStatus is one poll response from the backend progress endpoint.
// Stage is the server-side pipeline phase, distinct from the client-side
// TaskStatus it maps onto.
type ProcessingStatus struct {
	Stage       ProcessingStage `json:"stage"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message"`
	CurrentPage int             `json:"current_page,omitempty"`
	TotalPages  int             `json:"total_pages,omitempty"`
}

// TaskStatus maps the server stage to the client task status. Both parsing
// and vectorizing are a single "processing" state for the caller.
func (s ProcessingStatus) TaskStatus() TaskStatus {
	switch s.Stage {
	case StageCompleted:
		return StatusCompleted
	case StageError:
		return StatusError
	default:
		return StatusProcessing
	}
}
