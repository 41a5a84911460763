package trace

// TraceLevel controls the verbosity of warp-issue tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelIssues captures every warp issue decision.
	TraceLevelIssues TraceLevel = "issues"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelIssues: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// IssueRecord captures one warp selection: which warp of which block was
// issued by which SM subpartition at which tick.
type IssueRecord struct {
	Tick         int64
	SM           int
	Subpartition int
	Warp         int
	Block        int
}

// ExecutionTrace collects warp issue decisions during a kernel launch.
type ExecutionTrace struct {
	Config TraceConfig
	Policy string
	Issues []IssueRecord
}

// NewExecutionTrace creates an ExecutionTrace ready for recording.
func NewExecutionTrace(config TraceConfig, policy string) *ExecutionTrace {
	return &ExecutionTrace{
		Config: config,
		Policy: policy,
		Issues: make([]IssueRecord, 0),
	}
}

// Enabled reports whether issue records should be captured.
func (t *ExecutionTrace) Enabled() bool {
	return t != nil && t.Config.Level == TraceLevelIssues
}

// RecordIssue appends a warp issue record.
func (t *ExecutionTrace) RecordIssue(record IssueRecord) {
	t.Issues = append(t.Issues, record)
}
