// Package tools implements the 36-tool surface of spec.md §6.1, wired onto
// internal/driver.Driver through internal/session.Session. It generalizes
// the original repo's coarse, Delve-specific tool set into the full
// backend-neutral surface described above; internal/mcptools
// is the MCP-facing adapter over this package.
package tools

import "github.com/agenttools/debugd/internal/driver"

// LaunchArgs is the argument to Launch.
type LaunchArgs struct {
	Program     string            `json:"program"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	StopOnEntry bool              `json:"stop_on_entry,omitempty"`
	Language    string            `json:"language,omitempty"`
	Group       string            `json:"group,omitempty"`
	StopAll     bool              `json:"stop_all,omitempty"`
}

// AttachArgs is the argument to Attach.
type AttachArgs struct {
	PID      int    `json:"pid,omitempty"`
	Port     int    `json:"port,omitempty"`
	Language string `json:"language,omitempty"`
	Group    string `json:"group,omitempty"`
	StopAll  bool   `json:"stop_all,omitempty"`
}

// SessionResult is returned by Launch/Attach.
type SessionResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// RestartArgs/StopArgs/common session-scoped requests.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

type StopArgs struct {
	SessionID     string `json:"session_id"`
	Detach        bool   `json:"detach,omitempty"`
	TerminateOnly bool   `json:"terminate_only,omitempty"`
}

type RestartedResult struct {
	Restarted bool `json:"restarted"`
}

// BreakpointArgs is the argument to the `breakpoint` tool (action-dispatched).
type BreakpointArgs struct {
	SessionID    string `json:"session_id"`
	Action       string `json:"action"`
	ID           int    `json:"id,omitempty"`
	File         string `json:"file,omitempty"`
	Line         int    `json:"line,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hit_condition,omitempty"`
	LogMessage   string `json:"log_message,omitempty"`
	Filters      []string `json:"filters,omitempty"`
}

// BreakpointResult mirrors driver.BreakpointInfo in tool-facing JSON shape.
type BreakpointResult struct {
	ID        int    `json:"id"`
	Kind      string `json:"kind"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Address   uint64 `json:"address,omitempty"`
	Function  string `json:"function,omitempty"`
	Verified  bool   `json:"verified"`
	Message   string `json:"message,omitempty"`
	Condition string `json:"condition,omitempty"`
}

func breakpointResult(b driver.BreakpointInfo) BreakpointResult {
	return BreakpointResult{
		ID: b.ID, Kind: string(b.Kind), File: b.File, Line: b.Line, Address: b.Address,
		Function: b.Function, Verified: b.Verified, Message: b.Message, Condition: b.Condition,
	}
}

type InstructionBreakpointArgs struct {
	SessionID            string `json:"session_id"`
	InstructionReference string `json:"instruction_reference"`
	Offset               int    `json:"offset,omitempty"`
	Condition            string `json:"condition,omitempty"`
	HitCondition         string `json:"hit_condition,omitempty"`
}

type BreakpointLocationsArgs struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Line      int    `json:"line"`
	EndLine   int    `json:"end_line,omitempty"`
	Column    int    `json:"column,omitempty"`
	EndColumn int    `json:"end_column,omitempty"`
}

type Location struct {
	Line      int `json:"line"`
	EndLine   int `json:"endLine,omitempty"`
	Column    int `json:"column,omitempty"`
	EndColumn int `json:"endColumn,omitempty"`
}

type WatchpointArgs struct {
	SessionID  string `json:"session_id"`
	Variable   string `json:"variable,omitempty"`
	Address    uint64 `json:"address,omitempty"`
	AccessType string `json:"access_type"`
	FrameID    int    `json:"frame_id,omitempty"`
}

type RunArgs struct {
	SessionID   string `json:"session_id"`
	Action      string `json:"action"`
	Granularity string `json:"granularity,omitempty"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	TargetID    int    `json:"target_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
}

// StopContextResult mirrors driver.StopContext in tool-facing JSON shape.
type StopContextResult struct {
	Reason         string `json:"reason"`
	ThreadID       int    `json:"thread_id,omitempty"`
	PC             uint64 `json:"pc,omitempty"`
	File           string `json:"file,omitempty"`
	Line           int    `json:"line,omitempty"`
	Column         int    `json:"column,omitempty"`
	Description    string `json:"description,omitempty"`
	ExceptionID    string `json:"exception_id,omitempty"`
	BreakMode      string `json:"break_mode,omitempty"`
	HitBreakpoints []int  `json:"hit_breakpoints,omitempty"`
}

func stopContextResult(sc driver.StopContext) StopContextResult {
	return StopContextResult{
		Reason: string(sc.Reason), ThreadID: sc.ThreadID, PC: sc.PC, File: sc.File, Line: sc.Line,
		Column: sc.Column, Description: sc.Description, ExceptionID: sc.ExceptionID,
		BreakMode: sc.BreakMode, HitBreakpoints: sc.HitBreakpoints,
	}
}

type InspectArgs struct {
	SessionID   string `json:"session_id"`
	Expression  string `json:"expression,omitempty"`
	VariableRef int    `json:"variable_ref,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Context     string `json:"context,omitempty"`
	FrameID     int    `json:"frame_id,omitempty"`
}

type VariableResult struct {
	Name               string `json:"name,omitempty"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference,omitempty"`
}

type InspectResult struct {
	Result             string           `json:"result"`
	Type               string           `json:"type,omitempty"`
	VariablesReference int              `json:"variablesReference,omitempty"`
	Children           []VariableResult `json:"children,omitempty"`
}

func inspectResult(v driver.EvaluatedValue) InspectResult {
	r := InspectResult{Result: v.Result, Type: v.Type, VariablesReference: v.VariablesReference}
	for _, c := range v.Children {
		r.Children = append(r.Children, VariableResult{Name: c.Name, Value: c.Value, Type: c.Type, VariablesReference: c.VariablesReference})
	}
	return r
}

type SetVariableArgs struct {
	SessionID string `json:"session_id"`
	Variable  string `json:"variable"`
	Value     string `json:"value"`
	FrameID   int    `json:"frame_id,omitempty"`
}

type SetExpressionArgs struct {
	SessionID  string `json:"session_id"`
	Expression string `json:"expression"`
	Value      string `json:"value"`
	FrameID    int    `json:"frame_id,omitempty"`
}

type ThreadResult struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type FrameArgs struct {
	SessionID  string `json:"session_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	StartFrame int    `json:"start_frame,omitempty"`
	Levels     int    `json:"levels,omitempty"`
}

type FrameResult struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	File         string `json:"file,omitempty"`
	Line         int    `json:"line,omitempty"`
	Column       int    `json:"column,omitempty"`
	PC           uint64 `json:"pc,omitempty"`
	Presentation string `json:"presentation,omitempty"`
}

type ScopesArgs struct {
	SessionID string `json:"session_id"`
	FrameID   int    `json:"frame_id"`
}

type ScopeResult struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive,omitempty"`
}

type ModuleResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Symbols bool   `json:"symbols,omitempty"`
}

type SourceResult struct {
	Path      string `json:"path,omitempty"`
	Reference int    `json:"reference,omitempty"`
}

type ReadSourceArgs struct {
	SessionID       string `json:"session_id"`
	SourceReference int    `json:"source_reference"`
}

type CompletionsArgs struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Column    int    `json:"column,omitempty"`
	FrameID   int    `json:"frame_id,omitempty"`
}

type TargetResult struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Line  int    `json:"line,omitempty"`
}

type ExceptionInfoArgs struct {
	SessionID string `json:"session_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
}

type ExceptionInfoResult struct {
	ExceptionID string `json:"exceptionId,omitempty"`
	Description string `json:"description,omitempty"`
	BreakMode   string `json:"breakMode,omitempty"`
	Details     string `json:"details,omitempty"`
}

type GotoTargetsArgs struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
}

type RestartFrameArgs struct {
	SessionID string `json:"session_id"`
	FrameID   int    `json:"frame_id"`
}

type AckResult struct {
	OK bool `json:"ok"`
}

type MemoryArgs struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Address   uint64 `json:"address"`
	Size      int    `json:"size,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Data      string `json:"data,omitempty"` // base64, for action=write
}

type MemoryResult struct {
	Data string `json:"data,omitempty"` // base64, for action=read
	Ack  bool   `json:"ack,omitempty"`
}

type DisassembleArgs struct {
	SessionID        string `json:"session_id"`
	Address          uint64 `json:"address"`
	InstructionCount int    `json:"instruction_count,omitempty"`
	ResolveSymbols   bool   `json:"resolve_symbols,omitempty"`
}

type InstrResult struct {
	Address          uint64 `json:"address"`
	Instruction      string `json:"instruction"`
	InstructionBytes string `json:"instructionBytes,omitempty"`
	Symbol           string `json:"symbol,omitempty"`
}

type RegistersArgs struct {
	SessionID string `json:"session_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
}

type RegisterResult struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

type WriteRegisterArgs struct {
	SessionID string `json:"session_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	Name      string `json:"name"`
	Value     uint64 `json:"value"`
}

type FindSymbolArgs struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	FrameID   int    `json:"frame_id,omitempty"`
}

type SymbolResult struct {
	Name    string `json:"name"`
	Address uint64 `json:"address"`
	Size    uint64 `json:"size,omitempty"`
}

type VariableLocationArgs struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	FrameID   int    `json:"frame_id,omitempty"`
}

type LocationResult struct {
	Kind    string `json:"kind"`
	Address uint64 `json:"address,omitempty"`
	Reg     string `json:"reg,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
}

type PollEventsArgs struct {
	SessionID string `json:"session_id,omitempty"`
}

type EventResult struct {
	Kind       string         `json:"kind"`
	Body       map[string]any `json:"body,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	OccurredAt string         `json:"occurred_at,omitempty"`
}

type CancelArgs struct {
	RequestID  string `json:"request_id,omitempty"`
	ProgressID string `json:"progress_id,omitempty"`
}

type CancelledResult struct {
	Cancelled bool `json:"cancelled"`
}

type TerminateThreadsArgs struct {
	SessionID string `json:"session_id"`
	ThreadIDs []int  `json:"thread_ids"`
}

type TerminatedResult struct {
	Terminated bool `json:"terminated"`
}

type CapabilitiesArgs struct {
	SessionID string `json:"session_id"`
}

// CapabilitiesResult uses DAP camelCase field names verbatim (spec.md
// §6.1: "Capability fields use DAP camelCase names verbatim").
type CapabilitiesResult struct {
	SupportsConfigurationDoneRequest    bool `json:"supportsConfigurationDoneRequest"`
	SupportsFunctionBreakpoints         bool `json:"supportsFunctionBreakpoints"`
	SupportsConditionalBreakpoints      bool `json:"supportsConditionalBreakpoints"`
	SupportsHitConditionalBreakpoints   bool `json:"supportsHitConditionalBreakpoints"`
	SupportsLogPoints                   bool `json:"supportsLogPoints"`
	SupportsInstructionBreakpoints      bool `json:"supportsInstructionBreakpoints"`
	SupportsDataBreakpoints             bool `json:"supportsDataBreakpoints"`
	SupportsReadMemoryRequest           bool `json:"supportsReadMemoryRequest"`
	SupportsWriteMemoryRequest          bool `json:"supportsWriteMemoryRequest"`
	SupportsDisassembleRequest          bool `json:"supportsDisassembleRequest"`
	SupportsRegisters                   bool `json:"supportsRegisters"`
	SupportsStepBack                    bool `json:"supportsStepBack"`
	SupportsRestartFrame                bool `json:"supportsRestartFrame"`
	SupportsRestartRequest              bool `json:"supportsRestartRequest"`
	SupportsGotoTargetsRequest          bool `json:"supportsGotoTargetsRequest"`
	SupportsStepInTargetsRequest        bool `json:"supportsStepInTargetsRequest"`
	SupportsExceptionInfoRequest        bool `json:"supportsExceptionInfoRequest"`
	SupportsCompletionsRequest          bool `json:"supportsCompletionsRequest"`
	SupportsCancelRequest               bool `json:"supportsCancelRequest"`
	SupportsTerminateThreadsRequest      bool `json:"supportsTerminateThreadsRequest"`
	SupportsFindSymbol                  bool `json:"supportsFindSymbol"`
	SupportsVariableLocation             bool `json:"supportsVariableLocation"`
}

func capabilitiesResult(c driver.CapSet) CapabilitiesResult {
	return CapabilitiesResult{
		SupportsConfigurationDoneRequest:  c.SupportsConfigurationDone,
		SupportsFunctionBreakpoints:       c.SupportsFunctionBreakpoints,
		SupportsConditionalBreakpoints:    c.SupportsConditionalBreakpoints,
		SupportsHitConditionalBreakpoints: c.SupportsHitConditionalBreakpoints,
		SupportsLogPoints:                 c.SupportsLogPoints,
		SupportsInstructionBreakpoints:    c.SupportsInstructionBreakpoints,
		SupportsDataBreakpoints:           c.SupportsDataBreakpoints,
		SupportsReadMemoryRequest:         c.SupportsReadMemory,
		SupportsWriteMemoryRequest:        c.SupportsWriteMemory,
		SupportsDisassembleRequest:        c.SupportsDisassemble,
		SupportsRegisters:                 c.SupportsRegisters,
		SupportsStepBack:                  c.SupportsStepBack,
		SupportsRestartFrame:              c.SupportsRestartFrame,
		SupportsRestartRequest:            c.SupportsRestartRequest,
		SupportsGotoTargetsRequest:        c.SupportsGotoTargets,
		SupportsStepInTargetsRequest:      c.SupportsStepInTargets,
		SupportsExceptionInfoRequest:      c.SupportsExceptionInfo,
		SupportsCompletionsRequest:        c.SupportsCompletions,
		SupportsCancelRequest:             c.SupportsCancelRequest,
		SupportsTerminateThreadsRequest:   c.SupportsTerminateThreads,
		SupportsFindSymbol:                c.SupportsFindSymbol,
		SupportsVariableLocation:          c.SupportsVariableLocation,
	}
}

type SessionListResult struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	DriverType string `json:"driver_type"`
}
