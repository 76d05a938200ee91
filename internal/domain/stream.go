package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StreamEventType is the "type" discriminator of one inbound stream frame.
type StreamEventType string

const (
	StreamStart              StreamEventType = "start"
	StreamParallelGroupStart StreamEventType = "parallel_group.start"
	StreamParallelTaskStart  StreamEventType = "parallel_task.start"
	StreamParallelTaskDone   StreamEventType = "parallel_task.done"
	StreamParallelTaskError  StreamEventType = "parallel_task.error"
	StreamParallelGroupDone  StreamEventType = "parallel_group.done"
	StreamMergeStart         StreamEventType = "merge.start"
	StreamMergeDone          StreamEventType = "merge.done"
	StreamReasoning          StreamEventType = "reasoning"
	StreamDelta              StreamEventType = "delta"
	StreamToolCall           StreamEventType = "tool_call"
	StreamToolOutput         StreamEventType = "tool_output"
	StreamToolLog            StreamEventType = "tool_log"
	StreamRunItem            StreamEventType = "run_item"
	StreamExcelAgent         StreamEventType = "excel_agent_event"
	StreamDone               StreamEventType = "done"
	StreamErrorType          StreamEventType = "error"
	StreamAnalysis           StreamEventType = "analysis"
	StreamWorkflowUpdate     StreamEventType = "workflow_update"
)

// StreamEvent is one decoded frame of the agent trace. The set of
// implementations is closed; UnknownEvent carries anything unrecognized.
type StreamEvent interface {
	Type() StreamEventType
	streamEvent()
}

// AgentScoped is implemented by content-bearing events that may be routed
// into a parallel window.
type AgentScoped interface {
	StreamEvent
	AgentName() string
}

// ParallelTask describes one sub-agent task of a parallel group.
type ParallelTask struct {
	AgentName string `json:"agent_name"`
	Task      string `json:"task,omitempty"`
}

type (
	// StartEvent is the first frame of a response.
	StartEvent struct {
		SessionID string
		Message   string
	}

	ParallelGroupStartEvent struct {
		GroupIdx int
		Tasks    []ParallelTask
	}

	ParallelTaskStartEvent struct {
		Agent string
		Task  string
	}

	ParallelTaskDoneEvent struct {
		Agent string
		Task  string
	}

	ParallelTaskErrorEvent struct {
		Agent string
		Error string
	}

	ParallelGroupDoneEvent struct {
		GroupIdx int
	}

	MergeStartEvent struct{}

	MergeDoneEvent struct{}

	ReasoningEvent struct {
		Agent   string
		Content string
		Done    bool
	}

	DeltaEvent struct {
		Agent   string
		Content string
		Done    bool
	}

	// ToolCallEvent carries either a full Arguments snapshot (HasArguments)
	// or an ArgumentsDelta increment.
	ToolCallEvent struct {
		Agent          string
		ToolName       string
		Arguments      string
		HasArguments   bool
		ArgumentsDelta string
		Mode           ContentType
		Done           bool
	}

	ToolOutputEvent struct {
		Agent    string
		ToolName string
		Output   string
	}

	ToolLogEvent struct {
		Agent    string
		ToolName string
		Message  string
	}

	RunItemEvent struct {
		Agent            string
		ItemType         string
		ReasoningSummary string
		ToolName         string
		ToolArguments    string
		ToolOutput       string
		HandoffName      string
		HandoffArguments string
		SourceAgent      string
		TargetAgent      string
		RawInfo          string
	}

	ExcelAgentEvent struct {
		Agent   string
		Content string
		Done    bool
		Title   string
		Clean   bool
		Mode    ContentType
	}

	DoneEvent struct {
		Agent          string
		TerminateCard  bool
		FinalOutput    string
		HasFinalOutput bool
	}

	ErrorEvent struct {
		Message string
	}

	// AnalysisEvent is rendered at most once per ID.
	AnalysisEvent struct {
		ID      string
		Content string
	}

	WorkflowUpdateEvent struct {
		Steps json.RawMessage
	}

	// UnknownEvent preserves a frame whose type is not recognized.
	UnknownEvent struct {
		Kind string
		Raw  json.RawMessage
	}
)

func (StartEvent) Type() StreamEventType              { return StreamStart }
func (ParallelGroupStartEvent) Type() StreamEventType { return StreamParallelGroupStart }
func (ParallelTaskStartEvent) Type() StreamEventType  { return StreamParallelTaskStart }
func (ParallelTaskDoneEvent) Type() StreamEventType   { return StreamParallelTaskDone }
func (ParallelTaskErrorEvent) Type() StreamEventType  { return StreamParallelTaskError }
func (ParallelGroupDoneEvent) Type() StreamEventType  { return StreamParallelGroupDone }
func (MergeStartEvent) Type() StreamEventType         { return StreamMergeStart }
func (MergeDoneEvent) Type() StreamEventType          { return StreamMergeDone }
func (ReasoningEvent) Type() StreamEventType          { return StreamReasoning }
func (DeltaEvent) Type() StreamEventType              { return StreamDelta }
func (ToolCallEvent) Type() StreamEventType           { return StreamToolCall }
func (ToolOutputEvent) Type() StreamEventType         { return StreamToolOutput }
func (ToolLogEvent) Type() StreamEventType            { return StreamToolLog }
func (RunItemEvent) Type() StreamEventType            { return StreamRunItem }
func (ExcelAgentEvent) Type() StreamEventType         { return StreamExcelAgent }
func (DoneEvent) Type() StreamEventType               { return StreamDone }
func (ErrorEvent) Type() StreamEventType              { return StreamErrorType }
func (AnalysisEvent) Type() StreamEventType           { return StreamAnalysis }
func (WorkflowUpdateEvent) Type() StreamEventType     { return StreamWorkflowUpdate }
func (e UnknownEvent) Type() StreamEventType          { return StreamEventType(e.Kind) }

func (StartEvent) streamEvent()              {}
func (ParallelGroupStartEvent) streamEvent() {}
func (ParallelTaskStartEvent) streamEvent()  {}
func (ParallelTaskDoneEvent) streamEvent()   {}
func (ParallelTaskErrorEvent) streamEvent()  {}
func (ParallelGroupDoneEvent) streamEvent()  {}
func (MergeStartEvent) streamEvent()         {}
func (MergeDoneEvent) streamEvent()          {}
func (ReasoningEvent) streamEvent()          {}
func (DeltaEvent) streamEvent()              {}
func (ToolCallEvent) streamEvent()           {}
func (ToolOutputEvent) streamEvent()         {}
func (ToolLogEvent) streamEvent()            {}
func (RunItemEvent) streamEvent()            {}
func (ExcelAgentEvent) streamEvent()         {}
func (DoneEvent) streamEvent()               {}
func (ErrorEvent) streamEvent()              {}
func (AnalysisEvent) streamEvent()           {}
func (WorkflowUpdateEvent) streamEvent()     {}
func (UnknownEvent) streamEvent()            {}

func (e ReasoningEvent) AgentName() string  { return e.Agent }
func (e DeltaEvent) AgentName() string      { return e.Agent }
func (e ToolCallEvent) AgentName() string   { return e.Agent }
func (e ToolOutputEvent) AgentName() string { return e.Agent }
func (e ToolLogEvent) AgentName() string    { return e.Agent }
func (e RunItemEvent) AgentName() string    { return e.Agent }
func (e ExcelAgentEvent) AgentName() string { return e.Agent }
func (e DoneEvent) AgentName() string       { return e.Agent }

type wireTask struct {
	AgentName string          `json:"agent_name"`
	Task      json.RawMessage `json:"task"`
}

// wireEvent is the union of every field any frame may carry. Fields whose
// producer sends either a string or a structured value are kept raw.
type wireEvent struct {
	Type             string          `json:"type"`
	AgentName        string          `json:"agent_name"`
	Content          json.RawMessage `json:"content"`
	Done             bool            `json:"done"`
	Message          json.RawMessage `json:"message"`
	SessionID        string          `json:"session_id"`
	GroupIdx         int             `json:"group_idx"`
	Tasks            []wireTask      `json:"tasks"`
	Task             json.RawMessage `json:"task"`
	Error            json.RawMessage `json:"error"`
	ToolName         string          `json:"tool_name"`
	Arguments        json.RawMessage `json:"arguments"`
	ArgumentsDelta   json.RawMessage `json:"arguments_delta"`
	Mode             string          `json:"mode"`
	Output           json.RawMessage `json:"output"`
	ItemType         string          `json:"item_type"`
	ReasoningSummary json.RawMessage `json:"reasoning_summary"`
	ToolArguments    json.RawMessage `json:"tool_arguments"`
	ToolOutput       json.RawMessage `json:"tool_output"`
	HandoffName      string          `json:"handoff_name"`
	HandoffArguments json.RawMessage `json:"handoff_arguments"`
	SourceAgent      string          `json:"source_agent"`
	TargetAgent      string          `json:"target_agent"`
	RawInfo          json.RawMessage `json:"raw_info"`
	Title            string          `json:"title"`
	Clean            bool            `json:"clean"`
	TerminateCard    bool            `json:"terminate_card"`
	FinalOutput      json.RawMessage `json:"final_output"`
	ID               json.RawMessage `json:"id"`
	WorkflowSteps    json.RawMessage `json:"workflow_steps"`
}

// DecodeStreamEvent parses one JSON frame payload into its typed variant.
// Errors wrap ErrMalformedFrame.
func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch StreamEventType(w.Type) {
	case StreamStart:
		return StartEvent{SessionID: w.SessionID, Message: rawText(w.Message)}, nil
	case StreamParallelGroupStart:
		tasks := make([]ParallelTask, 0, len(w.Tasks))
		for _, t := range w.Tasks {
			if t.AgentName == "" {
				continue
			}
			tasks = append(tasks, ParallelTask{AgentName: t.AgentName, Task: rawText(t.Task)})
		}
		return ParallelGroupStartEvent{GroupIdx: w.GroupIdx, Tasks: tasks}, nil
	case StreamParallelTaskStart:
		return ParallelTaskStartEvent{Agent: w.AgentName, Task: rawText(w.Task)}, nil
	case StreamParallelTaskDone:
		return ParallelTaskDoneEvent{Agent: w.AgentName, Task: rawText(w.Task)}, nil
	case StreamParallelTaskError:
		return ParallelTaskErrorEvent{Agent: w.AgentName, Error: rawText(w.Error)}, nil
	case StreamParallelGroupDone:
		return ParallelGroupDoneEvent{GroupIdx: w.GroupIdx}, nil
	case StreamMergeStart:
		return MergeStartEvent{}, nil
	case StreamMergeDone:
		return MergeDoneEvent{}, nil
	case StreamReasoning:
		return ReasoningEvent{Agent: w.AgentName, Content: rawText(w.Content), Done: w.Done}, nil
	case StreamDelta:
		return DeltaEvent{Agent: w.AgentName, Content: rawText(w.Content), Done: w.Done}, nil
	case StreamToolCall:
		return ToolCallEvent{
			Agent:          w.AgentName,
			ToolName:       w.ToolName,
			Arguments:      rawText(w.Arguments),
			HasArguments:   present(w.Arguments),
			ArgumentsDelta: rawText(w.ArgumentsDelta),
			Mode:           ToolCallMode(w.Mode, w.ToolName),
			Done:           w.Done,
		}, nil
	case StreamToolOutput:
		return ToolOutputEvent{Agent: w.AgentName, ToolName: w.ToolName, Output: rawText(w.Output)}, nil
	case StreamToolLog:
		return ToolLogEvent{Agent: w.AgentName, ToolName: w.ToolName, Message: rawText(w.Message)}, nil
	case StreamRunItem:
		return RunItemEvent{
			Agent:            w.AgentName,
			ItemType:         w.ItemType,
			ReasoningSummary: rawText(w.ReasoningSummary),
			ToolName:         w.ToolName,
			ToolArguments:    rawText(w.ToolArguments),
			ToolOutput:       rawText(w.ToolOutput),
			HandoffName:      w.HandoffName,
			HandoffArguments: rawText(w.HandoffArguments),
			SourceAgent:      w.SourceAgent,
			TargetAgent:      w.TargetAgent,
			RawInfo:          rawText(w.RawInfo),
		}, nil
	case StreamExcelAgent:
		return ExcelAgentEvent{
			Agent:   w.AgentName,
			Content: rawText(w.Content),
			Done:    w.Done,
			Title:   w.Title,
			Clean:   w.Clean,
			Mode:    ParseContentType(w.Mode),
		}, nil
	case StreamDone:
		return DoneEvent{
			Agent:          w.AgentName,
			TerminateCard:  w.TerminateCard,
			FinalOutput:    rawText(w.FinalOutput),
			HasFinalOutput: rawText(w.FinalOutput) != "",
		}, nil
	case StreamErrorType:
		return ErrorEvent{Message: rawText(w.Error)}, nil
	case StreamAnalysis:
		return AnalysisEvent{ID: rawText(w.ID), Content: rawText(w.Content)}, nil
	case StreamWorkflowUpdate:
		return WorkflowUpdateEvent{Steps: w.WorkflowSteps}, nil
	default:
		return UnknownEvent{Kind: w.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// ToolCallMode resolves the content type of a tool call's arguments. An
// explicit mode wins; otherwise tools whose name mentions code or sql stream
// source code and everything else streams JSON. A frame with neither a mode
// nor a tool name yields "", leaving the open card's type unchanged.
func ToolCallMode(mode, toolName string) ContentType {
	if mode != "" {
		return ParseContentType(mode)
	}
	if toolName == "" {
		return ""
	}
	name := strings.ToLower(toolName)
	if strings.Contains(name, "code") || strings.Contains(name, "sql") {
		return ContentCode
	}
	return ContentJSON
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// rawText returns a JSON string's value, or the compact JSON text of any
// other value. Absent and null yield "".
func rawText(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
