package toolbelt

// Stage identifies where in the orchestration flow an event was emitted
type Stage string

const (
	StageProposing    Stage = "proposing"
	StageRegistering  Stage = "registering"
	StageSynthesizing Stage = "synthesizing"
	StagePlanning     Stage = "planning"
	StageExecuting    Stage = "executing"
	StageSummarizing  Stage = "summarizing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Event is a progress message streamed to the caller while a session runs
type Event struct {
	Session string `json:"session"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Error   string `json:"error,omitempty"`
}
