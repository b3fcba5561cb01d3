// Package blocks defines the contract every node type implements and the
// type-keyed registry that maps a node's "type" string to its
// implementation. The shape is deliberately close to a plain function
// registry — register(type_name) / run_block(type, input, ctx) — rather
// than a class hierarchy: each block is a small, stateless value built
// fresh per invocation from its settings.
package blocks

import (
	"context"

	"github.com/worldline-go/klient"

	"github.com/flowforge/engine/internal/objectstore"
	"github.com/flowforge/engine/internal/provider"
)

// Kind groups blocks for the frontend palette and for the engine's
// fail-stop scheduling pass. "tool" kind blocks are never scheduled in the
// main topological pass — they only run when an owning agent node invokes
// them.
type Kind string

const (
	KindExecutor Kind = "executor"
	KindAgent    Kind = "agent"
	KindTool     Kind = "tool"
	KindTrigger  Kind = "trigger"
)

// ToolSpec describes one tool attached to an agent node via a tool-kind
// edge, resolved from the graph by the engine before Run is called.
type ToolSpec struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`

	// InputSchema, if present, is a JSON Schema the agent's tool-call
	// arguments are validated against before the tool runs. Optional — a
	// tool node with no "input_schema" setting accepts any argument shape.
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// FileRef is a portable reference to an object-storage blob: enough to
// refetch it (Bucket/Path), describe it (Size/ContentType), and hand it to
// a caller without going back through the engine (SignedURL/PublicURL).
// file.save produces one per call; a later file.save may take one as its
// upstream input to re-save the same bytes under a new path.
type FileRef struct {
	Bucket             string `json:"bucket"`
	Path               string `json:"path"`
	Size               int64  `json:"size"`
	ContentType        string `json:"content_type"`
	SignedURL          string `json:"signed_url"`
	SignedURLExpiresAt string `json:"signed_url_expires_at"`
	PublicURL          string `json:"public_url,omitempty"`
}

// Media describes a synthesized or transcribed audio asset, returned
// inline (not through the object store) by audio.tts/audio.stt.
type Media struct {
	Kind     string `json:"kind"`
	Mime     string `json:"mime"`
	BytesB64 string `json:"bytes_b64"`
	Filename string `json:"filename,omitempty"`
	Size     int    `json:"size"`
	URI      string `json:"uri,omitempty"`
}

// Capabilities is the run-scoped bundle of external access a block reaches
// through Input.Caps instead of package-level globals: an outbound HTTP
// client, the object-storage client, an LLM provider lookup, a same-process
// tool dispatcher (for agent.react re-entering the registry), and a durable
// append-log function. Grounded on the original RunContext dataclass
// (gcs, http, logger) — generalized with the Provider/ToolRunner fields
// this engine's LLM- and agent-backed blocks need reached the same way.
// The engine populates one per node before calling Run; a nil field means
// that capability was never configured for this deployment, which a block
// reports as DependencyError rather than silently degrading to its own
// global state.
type Capabilities struct {
	HTTP       *klient.Client
	Store      *objectstore.Store
	Provider   provider.Lookup
	ToolRunner func(ctx context.Context, typeName string, in Input) (Output, error)
	// Log durably appends a log entry attributed to the node currently
	// running. Fire-and-forget from the block's perspective, but the
	// engine appends it before Run returns, matching ctx.log's ordering
	// guarantee.
	Log func(message string, data map[string]any)
}

// Input is the node-local execution context a block's Run receives.
type Input struct {
	// Settings is this node's own (already-rendered-or-raw, block decides)
	// configuration.
	Settings map[string]any
	// Upstream maps parent node ID to that parent's output data, for every
	// parent connected by a control edge whose node has already produced
	// output this run.
	Upstream map[string]any
	// Trigger is the payload the run was started with (webhook body, cron
	// metadata, manual invocation input).
	Trigger map[string]any
	// NodeID is this node's graph ID, or a synthesized
	// "<agent_id>::tool::<tool_name>" ID when invoked as an agent tool.
	NodeID string
	// DerivedTools is populated only for agent-kind nodes: the tool specs
	// attached via tool edges in the graph.
	DerivedTools []ToolSpec
	// Caps is the run-scoped capability bundle. Zero value means no
	// capability is available (e.g. a bare test Input{}); blocks that need
	// one report DependencyError rather than falling back to global state.
	Caps Capabilities
}

// Output is a block's result, keyed by whatever output field names the
// block defines (e.g. {"text": ...} for llm.simple, {"result": ...} for
// tool.calculator). A block that wraps its own payload under a single
// "data" key (show, agent.react) gets it transparently unwrapped for
// downstream templates by template.FlattenUpstream.
type Output struct {
	Data map[string]any
}

// Block is the interface every node type implements.
type Block interface {
	// Kind reports whether this block runs in the main pass, as a tool, as
	// an agent, or as a trigger entry point.
	Kind() Kind
	// ToolCompatible reports whether this block may be attached to an
	// agent via a tool edge and invoked by name during the agent's ReAct
	// loop.
	ToolCompatible() bool
	// Extras carries block-specific frontend/connector metadata (e.g. an
	// agent's "tools" connector declaration). May be nil.
	Extras() map[string]any
	// SettingsSchema returns a JSON Schema (draft-7 subset, as accepted by
	// xeipuuv/gojsonschema) describing this node type's settings, or nil if
	// the type has no declared schema and accepts any shape. Validated
	// against a node's settings at workflow write time so a malformed graph
	// is rejected with InvalidGraph before it ever reaches a run, the same
	// role input_schema plays for an agent's tool-call arguments.
	SettingsSchema() map[string]any
	// Run executes the block. Expected failure modes come back as a
	// *BlockError, whose Category is part of its message; the engine records
	// any returned error by its message and does not classify it.
	Run(ctx context.Context, in Input) (Output, error)
}

// Factory builds a Block instance from a node's raw settings map. Most
// blocks are stateless and simply store the settings; Factory exists so a
// block can validate/parse settings once at construction time.
type Factory func(settings map[string]any) (Block, error)
