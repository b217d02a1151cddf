// ABOUTME: Streaming response rendering for the TUI
// ABOUTME: Subscribes to transcript snapshots and prints incremental deltas

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/engine"
	"github.com/2389/parley/internal/transcript"
)

// streamResponse renders the in-flight answer as it streams: content
// deltas print in place, agent thoughts and workflow nodes print as
// single-line markers when they first appear.
func streamResponse(ctx context.Context, e *engine.Engine) {
	ch, subID := e.Subscribe(ctx)
	defer e.Unsubscribe(subID)

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	color.New(color.FgGreen).Print("assistant: ")

	r := &deltaRenderer{
		seenThoughts: make(map[string]bool),
		seenNodes:    make(map[string]bool),
	}
	for {
		select {
		case snapshot := <-ch:
			r.render(snapshot)
		case <-done:
			// Drain snapshots published before the send settled.
			for {
				select {
				case snapshot := <-ch:
					r.render(snapshot)
					continue
				default:
				}
				break
			}
			fmt.Println()
			return
		case <-ctx.Done():
			return
		}
	}
}

type deltaRenderer struct {
	printed      string
	seenThoughts map[string]bool
	seenNodes    map[string]bool
}

func (r *deltaRenderer) render(snapshot []*transcript.Entry) {
	answer := lastAnswer(snapshot)
	if answer == nil {
		return
	}

	for _, thought := range answer.AgentThoughts {
		if !r.seenThoughts[thought.ID] {
			r.seenThoughts[thought.ID] = true
			color.New(color.FgHiBlack).Printf("\n[thought %d] ", thought.Position)
		}
	}
	if answer.WorkflowRun != nil {
		for _, node := range answer.WorkflowRun.Nodes {
			if !r.seenNodes[node.NodeID] {
				r.seenNodes[node.NodeID] = true
				color.New(color.FgHiBlack).Printf("\n[%s] %s ", node.NodeType, node.Title)
			}
		}
	}

	content := answer.Content
	if answer.AgentThoughts != nil {
		if last := answer.LastThought(); last != nil {
			content = last.Thought
		}
	}
	switch {
	case content == r.printed:
	case len(content) > len(r.printed) && content[:len(r.printed)] == r.printed:
		fmt.Print(content[len(r.printed):])
		r.printed = content
	default:
		// Replacement (moderation) or thought switch: reprint in full.
		fmt.Print("\n" + content)
		r.printed = content
	}
}

// lastAnswer returns the newest non-placeholder answer entry.
func lastAnswer(snapshot []*transcript.Entry) *transcript.Entry {
	for i := len(snapshot) - 1; i >= 0; i-- {
		entry := snapshot[i]
		if entry.Role == transcript.RoleAnswer && !entry.IsPlaceholder && !entry.IsOpeningStatement {
			return entry
		}
	}
	return nil
}
