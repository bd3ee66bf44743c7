// Package mcp exposes the scheduler over the Model Context Protocol so
// operator tooling can schedule and inspect tasks without the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"admintask/internal/core"
	"admintask/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	runner    *core.TaskRunner
	registry  *core.Registry
	logger    *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(store *store.Store, scheduler *core.Scheduler, runner *core.TaskRunner, registry *core.Registry, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		store:     store,
		scheduler: scheduler,
		runner:    runner,
		registry:  registry,
		logger:    logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"admintask",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("task_schedule",
		mcp.WithDescription("Schedule a named task to run after a delay, optionally repeating"),
		mcp.WithString("task_name",
			mcp.Required(),
			mcp.Description("Registered task name"),
		),
		mcp.WithString("params",
			mcp.Description("Task parameters as a JSON object"),
		),
		mcp.WithNumber("delay_ms",
			mcp.Description("Delay before execution in milliseconds, default 0"),
			mcp.Min(0),
		),
		mcp.WithNumber("interval_ms",
			mcp.Description("Repeat interval in milliseconds (omit for one-shot)"),
			mcp.Min(1),
		),
	), s.handleScheduleTask)

	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List recent task invocations with their results"),
		mcp.WithNumber("limit",
			mcp.Description("Number of rows to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Get one task invocation including its result, logs and runtime"),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task row ID"),
		),
	), s.handleGetTask)

	mcpServer.AddTool(mcp.NewTool("task_invoke",
		mcp.WithDescription("Execute a task immediately, by row ID or by name"),
		mcp.WithNumber("task_id",
			mcp.Description("Task row ID"),
		),
		mcp.WithString("task_name",
			mcp.Description("Registered task name"),
		),
	), s.handleInvokeTask)

	mcpServer.AddTool(mcp.NewTool("task_names",
		mcp.WithDescription("List registered task names"),
	), s.handleTaskNames)
}

func (s *MCPServer) handleScheduleTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskName := mcp.ParseString(request, "task_name", "")
	if taskName == "" {
		return mcp.NewToolResultError("task_name is required"), nil
	}

	var params any
	if raw := mcp.ParseString(request, "params", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("params is not valid JSON: %v", err)), nil
		}
	}

	delayMS := int64(mcp.ParseFloat64(request, "delay_ms", 0))
	var intervalMS *int64
	if v := int64(mcp.ParseFloat64(request, "interval_ms", 0)); v > 0 {
		intervalMS = &v
	}

	id, err := s.scheduler.ScheduleTask(ctx, core.ScheduleRequest{
		TaskName:   taskName,
		Params:     params,
		Delay:      time.Duration(delayMS) * time.Millisecond,
		IntervalMS: intervalMS,
	})
	if err != nil {
		s.logger.Error("schedule task", "task", taskName, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to schedule task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task scheduled\nID: %d\nName: %s", id, taskName)), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	tasks, err := s.store.ListTasks(ctx, limit, 0)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "#%d %s\n", t.ID, t.Name)
		fmt.Fprintf(&b, "  Scheduled: %s\n", t.ScheduledAt.UTC().Format(time.RFC3339))
		if t.Result != nil {
			fmt.Fprintf(&b, "  Result: %s\n", string(*t.Result))
		} else {
			fmt.Fprintf(&b, "  Result: pending\n")
		}
		if t.RuntimeMS != nil {
			fmt.Fprintf(&b, "  Runtime: %dms\n", *t.RuntimeMS)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(mcp.ParseFloat64(request, "task_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("task_id is required"), nil
	}

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load task %d: %v", id, err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", task.ID, task.Name)
	var params any
	if task.Params != "" {
		_ = json.Unmarshal([]byte(task.Params), &params)
	}
	if desc := s.registry.Describe(task.Name, params); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	fmt.Fprintf(&b, "Params: %s\n", task.Params)
	fmt.Fprintf(&b, "Scheduled: %s\n", task.ScheduledAt.UTC().Format(time.RFC3339))
	if task.ParentTaskID != nil {
		fmt.Fprintf(&b, "Rerun of: #%d\n", *task.ParentTaskID)
	}
	if task.IntervalMS != nil {
		fmt.Fprintf(&b, "Interval: %dms\n", *task.IntervalMS)
	}
	if task.Result != nil {
		fmt.Fprintf(&b, "Result: %s\n", string(*task.Result))
	} else {
		fmt.Fprintf(&b, "Result: pending\n")
	}
	if task.RuntimeMS != nil {
		fmt.Fprintf(&b, "Runtime: %dms\n", *task.RuntimeMS)
	}
	if task.Logs != nil {
		fmt.Fprintf(&b, "Logs: %s\n", *task.Logs)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleInvokeTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(mcp.ParseFloat64(request, "task_id", 0))
	name := mcp.ParseString(request, "task_name", "")

	var ref core.TaskRef
	switch {
	case id > 0 && name == "":
		ref = core.ByID(id)
	case id <= 0 && name != "":
		ref = core.ByName(name)
	default:
		return mcp.NewToolResultError("exactly one of task_id and task_name is required"), nil
	}

	result, err := s.runner.Run(ctx, s.scheduler, ref)
	if err != nil {
		s.logger.Error("invoke task", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("task execution faulted: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Result: %s", string(result))), nil
}

func (s *MCPServer) handleTaskNames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.registry.Names()
	if len(names) == 0 {
		return mcp.NewToolResultText("No tasks registered"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}
