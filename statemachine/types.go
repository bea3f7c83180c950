package statemachine

import (
	"encoding/json"
	"time"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/keyring"
	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/snapshot"
	"github.com/workrail/engine/telemetry"
	"github.com/workrail/engine/workflowdef"
)

// Engine wires every durable-execution component into the two operations
// spec.md §4.5 describes: start_workflow and continue_workflow. It holds
// no mutable state of its own beyond its configured dependencies, per
// spec.md §9 "no shared mutable state".
type Engine struct {
	fs              fsx.FS
	dataDir         fsx.DataDir
	gate            *gate.Gate
	events          *eventlog.Store
	snapshots       *snapshot.Store
	pinned          *workflowdef.PinnedWorkflowStore
	keyring         *keyring.Keyring
	provider        workflowdef.Provider
	interpreter     workflowdef.Interpreter
	maxContextBytes int
	logger          telemetry.Logger
	metrics         telemetry.Metrics
}

// Config bundles Engine's constructor arguments.
type Config struct {
	FS              fsx.FS
	DataDir         fsx.DataDir
	Gate            *gate.Gate
	Events          *eventlog.Store
	Snapshots       *snapshot.Store
	Pinned          *workflowdef.PinnedWorkflowStore
	Keyring         *keyring.Keyring
	Provider        workflowdef.Provider
	Interpreter     workflowdef.Interpreter
	MaxContextBytes int

	// Logger and Metrics default to no-ops when left nil, so callers that
	// don't care about observability never need to wire a stub.
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	maxBytes := cfg.MaxContextBytes
	if maxBytes <= 0 {
		maxBytes = 262144
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	return &Engine{
		fs:              cfg.FS,
		dataDir:         cfg.DataDir,
		gate:            cfg.Gate,
		events:          cfg.Events,
		snapshots:       cfg.Snapshots,
		pinned:          cfg.Pinned,
		keyring:         cfg.Keyring,
		provider:        cfg.Provider,
		interpreter:     cfg.Interpreter,
		maxContextBytes: maxBytes,
		logger:          logger,
		metrics:         metrics,
	}
}

// Preferences is the wire shape of a run's resolved preferences.
type Preferences struct {
	Autonomy   string `json:"autonomy"`
	RiskPolicy string `json:"riskPolicy"`
}

func wirePreferences(p projection.Preferences) Preferences {
	return Preferences{Autonomy: p.Autonomy, RiskPolicy: p.RiskPolicy}
}

// NextCall is a pre-built template telling the caller exactly how to
// issue its next continue_workflow call (spec.md §4.5.1 step 7).
type NextCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Response is the shared wire shape of start_workflow and the advance
// variant of continue_workflow (spec.md §6.2).
type Response struct {
	StateToken  string            `json:"stateToken"`
	AckToken    string            `json:"ackToken"`
	Pending     *workflowdef.Step `json:"pending"`
	IsComplete  bool              `json:"isComplete"`
	NextIntent  string            `json:"nextIntent"`
	NextCall    *NextCall         `json:"nextCall"`
	Preferences Preferences       `json:"preferences"`
	// Phase is a non-authoritative UI hint; EngineStateKind (reflected by
	// IsComplete/Pending/NextIntent) is what every invariant is defined on.
	Phase string `json:"phase"`
}

// StartInput is the payload start_workflow accepts.
type StartInput struct {
	WorkflowID string
	Context    json.RawMessage
}

// IntentKind is the closed set continue_workflow multiplexes (spec.md
// §4.5.2).
type IntentKind string

const (
	IntentRehydrate IntentKind = "rehydrate"
	IntentAdvance   IntentKind = "advance"
)

// ContinueInput is the payload continue_workflow accepts.
type ContinueInput struct {
	Intent     IntentKind
	StateToken string
	AckToken   string // required only for IntentAdvance
	Input      json.RawMessage
}

// defaultTimeout bounds every externally exposed operation per spec.md
// §5 ("every externally exposed operation carries an implicit timeout").
const defaultTimeout = 30 * time.Second
