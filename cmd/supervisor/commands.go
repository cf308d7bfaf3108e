package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/supervisor/internal/analytics"
	"github.com/kadirpekel/supervisor/internal/state"
	"github.com/kadirpekel/supervisor/internal/watcher"
)

// InitStateCmd creates the initial state blob for a project, failing
// if one already exists rather than silently re-initializing.
type InitStateCmd struct {
	ExecutionMode string `name:"execution-mode" help:"How enqueued tasks are driven." enum:"AUTO,MANUAL" required:""`
	Goal          string `help:"Goal description the queue works toward."`
}

func (c *InitStateCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	s := state.New(state.Goal{Description: c.Goal, ProjectID: g.ProjectID})
	s.ExecutionMode = c.ExecutionMode
	if err := a.manager.Init(context.Background(), s); err != nil {
		return err
	}
	fmt.Printf("initialized state for project %q\n", g.ProjectID)
	return nil
}

// SetGoalCmd updates the goal description of an already-initialized project.
type SetGoalCmd struct {
	Description string `help:"New goal description." required:""`
}

func (c *SetGoalCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := a.manager.Load(ctx)
	if err != nil {
		return err
	}
	s.Goal.Description = c.Description
	s.Goal.Completed = false
	if err := a.manager.Persist(ctx, s); err != nil {
		return err
	}
	fmt.Println("goal updated")
	return nil
}

// EnqueueCmd appends tasks read from a file (or a watched directory)
// to the project's task queue.
type EnqueueCmd struct {
	TaskFile string `name:"task-file" help:"Task file (JSON or YAML) holding one task or a list of tasks." type:"path"`
	WatchDir string `name:"watch-dir" help:"Directory to watch for newly dropped task files, enqueuing each as it appears." type:"path"`
}

func (c *EnqueueCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if c.TaskFile != "" {
		tasks, err := loadTaskFile(c.TaskFile)
		if err != nil {
			return err
		}
		if err := a.queue.EnqueueAll(ctx, tasks); err != nil {
			return err
		}
		fmt.Printf("enqueued %d task(s) from %s\n", len(tasks), c.TaskFile)
	}

	if c.WatchDir == "" {
		return nil
	}

	fmt.Printf("watching %s for new task files (Ctrl+C to stop)\n", c.WatchDir)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	notifyShutdown(cancel)

	w := watcher.New(c.WatchDir)
	return w.Watch(runCtx, func(path string) {
		if !watcher.IsTaskFile(path) {
			return
		}
		tasks, err := loadTaskFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			return
		}
		if err := a.queue.EnqueueAll(runCtx, tasks); err != nil {
			fmt.Fprintf(os.Stderr, "enqueue %s: %v\n", path, err)
			return
		}
		fmt.Printf("enqueued %d task(s) from %s\n", len(tasks), path)
	})
}

func loadTaskFile(path string) ([]state.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file %q: %w", path, err)
	}

	var single state.Task
	var list []state.Task
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list, nil
		}
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("parse task file %q: %w", path, err)
		}
		return []state.Task{single}, nil
	default:
		if err := yaml.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list, nil
		}
		if err := yaml.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("parse task file %q: %w", path, err)
		}
		return []state.Task{single}, nil
	}
}

// StartCmd runs the control loop until it halts, completes, or the
// process is signalled to stop.
type StartCmd struct{}

func (c *StartCmd) Run(g *Globals) error {
	initLogging(g.LogLevel)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	loop, err := a.buildLoop()
	if err != nil {
		return fmt.Errorf("build control loop: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(cancel)

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("control loop exited: %w", err)
	}
	return nil
}

// HaltCmd flips a running project's status to HALTED without touching
// in-flight task progress, for an operator-requested pause.
type HaltCmd struct{}

func (c *HaltCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := a.manager.Load(ctx)
	if err != nil {
		return err
	}
	s.Status = state.StatusHalted
	s.HaltReason = "OPERATOR_HALT"
	s.HaltDetails = "halted via the halt command"
	if err := a.manager.Persist(ctx, s); err != nil {
		return err
	}
	fmt.Println("halted")
	return nil
}

// ResumeCmd flips a halted project's status back to RUNNING, clearing
// the halt reason so `start` resumes from current_task or the queue.
type ResumeCmd struct{}

func (c *ResumeCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := a.manager.Load(ctx)
	if err != nil {
		return err
	}
	if s.Status != state.StatusHalted {
		return fmt.Errorf("project %q is not halted (status=%s)", g.ProjectID, s.Status)
	}
	s.Status = state.StatusRunning
	s.HaltReason = ""
	s.HaltDetails = ""
	if err := a.manager.Persist(ctx, s); err != nil {
		return err
	}
	fmt.Println("resumed")
	return nil
}

// StatusCmd prints a snapshot of a project's current state.
type StatusCmd struct{}

func (c *StatusCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := a.manager.Load(ctx)
	if err != nil {
		return err
	}
	pending, err := a.queue.Len(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("project:          %s\n", g.ProjectID)
	fmt.Printf("status:           %s\n", s.Status)
	fmt.Printf("iteration:        %d\n", s.Iteration)
	fmt.Printf("goal:             %s\n", s.Goal.Description)
	fmt.Printf("goal completed:   %t\n", s.Goal.Completed)
	fmt.Printf("pending tasks:    %d\n", pending)
	fmt.Printf("completed tasks:  %d\n", len(s.CompletedTasks))
	fmt.Printf("blocked tasks:    %d\n", len(s.BlockedTasks))
	if s.CurrentTask != nil {
		fmt.Printf("current task:     %s (%s)\n", s.CurrentTask.TaskID, s.CurrentTask.Intent)
	}
	if s.HaltReason != "" {
		fmt.Printf("halt reason:      %s (%s)\n", s.HaltReason, s.HaltDetails)
	}
	return nil
}

// MetricsCmd prints the aggregated analytics summary for a project.
type MetricsCmd struct{}

func (c *MetricsCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	summary, err := analytics.ReadSummary(a.sandbox.MetricsPath())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// notifyShutdown cancels cancel on SIGINT/SIGTERM, mirroring the
// graceful-shutdown pattern used across this project's long-running
// commands.
func notifyShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()
}
