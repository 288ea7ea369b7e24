// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/diff"
	"github.com/inkwell-dev/inkwell/internal/server"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the drafting agent",
		Long:  "Send a message to the drafting agent via the gateway. Starts an\ninteractive session when no message is provided. Proposed edits are\nshown as diffs and must be accepted before they touch the draft.",
		RunE:  runChat,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address (host:port)")
	cmd.Flags().StringP("session", "s", "", "resume an existing session by ID")
	cmd.Flags().String("draft", "", "existing draft to edit; omit to create one")
	cmd.Flags().String("title", "", "title for a newly created draft")
	cmd.Flags().StringP("model", "m", "", "provider/model override for the session")
	cmd.Flags().Bool("auto-accept", false, "accept proposed changes without prompting")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	sessionID, _ := cmd.Flags().GetString("session")
	autoAccept, _ := cmd.Flags().GetBool("auto-accept")

	client := newGatewayClient(addr)
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	if sessionID == "" {
		draftID, _ := cmd.Flags().GetString("draft")
		title, _ := cmd.Flags().GetString("title")
		model, _ := cmd.Flags().GetString("model")

		sess, err := createChatSession(client, draftID, title, model)
		if err != nil {
			return err
		}
		sessionID = sess.ID
		fmt.Fprintf(out, "Session %s (draft %s)\n", sess.ID, sess.DraftID)
	}

	runner := &chatRunner{
		client:     client,
		sessionID:  sessionID,
		autoAccept: autoAccept,
		in:         in,
		out:        out,
		errOut:     cmd.ErrOrStderr(),
	}

	if len(args) > 0 {
		return runner.send(cmd.Context(), strings.Join(args, " "))
	}

	fmt.Fprintln(out, `Type a message and press enter. "exit" or Ctrl-D leaves.`)
	for {
		fmt.Fprint(out, "> ")
		line, readErr := in.ReadString('\n')
		text := strings.TrimSpace(line)

		if text == "exit" || text == "quit" {
			return nil
		}
		if text != "" {
			if err := runner.send(cmd.Context(), text); err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return inkerr.Wrapf(readErr, inkerr.CodeCLIInputInvalid, "reading input")
		}
	}
}

func createChatSession(client *gatewayClient, draftID, title, model string) (*server.SessionBody, error) {
	payload := struct {
		DraftID string `json:"draftId,omitempty"`
		Title   string `json:"title,omitempty"`
		Model   string `json:"model,omitempty"`
	}{DraftID: draftID, Title: title, Model: model}

	var sess server.SessionBody
	if err := client.postJSON("/api/v1/sessions", payload, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// chatRunner drives one chat exchange over the gateway's SSE endpoint
// and resolves approval pauses inline.
type chatRunner struct {
	client     *gatewayClient
	sessionID  string
	autoAccept bool
	in         *bufio.Reader
	out        io.Writer
	errOut     io.Writer
}

func (r *chatRunner) send(ctx context.Context, content string) error {
	payload := struct {
		Content string `json:"content"`
	}{Content: content}

	resp, err := r.client.openStream(ctx, "/api/v1/sessions/"+r.sessionID+"/messages", payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return r.consume(resp.Body)
}

// consume reads SSE frames until a terminal event arrives. The stream
// stays open across approval pauses, so awaiting_approval is handled in
// place and reading continues on the same response body.
func (r *chatRunner) consume(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var pending []*agent.PendingChange
	var data string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			continue
		case line != "":
			// event: lines and comments carry nothing the payload
			// does not already include.
			continue
		}
		if data == "" {
			continue
		}

		var ev agent.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return inkerr.Wrapf(err, inkerr.CodeCLIResponseInvalid, "invalid stream event")
		}
		data = ""

		switch ev.Type {
		case agent.EventTextDelta:
			fmt.Fprint(r.out, ev.Text)
		case agent.EventToolCallStart:
			if ev.Call != nil {
				fmt.Fprintf(r.out, "\n[%s]\n", ev.Call.Name)
			}
		case agent.EventChangePending:
			if ev.Change != nil {
				pending = append(pending, ev.Change)
			}
		case agent.EventChangeResolved:
			pending = dropChange(pending, ev.Change)
		case agent.EventAwaitingApproval:
			if err := r.resolveApprovals(pending); err != nil {
				return err
			}
			pending = pending[:0]
		case agent.EventError:
			fmt.Fprintf(r.errOut, "\nError: %s\n", ev.Error)
			return nil
		case agent.EventCancelled:
			fmt.Fprintln(r.out, "\n(cancelled)")
			return nil
		case agent.EventDone:
			fmt.Fprintln(r.out)
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return inkerr.Wrapf(err, inkerr.CodeCLIResponseInvalid, "reading stream")
	}
	return nil
}

func dropChange(pending []*agent.PendingChange, resolved *agent.PendingChange) []*agent.PendingChange {
	if resolved == nil {
		return pending
	}
	for i, change := range pending {
		if change.ID == resolved.ID {
			return append(pending[:i], pending[i+1:]...)
		}
	}
	return pending
}

func (r *chatRunner) resolveApprovals(pending []*agent.PendingChange) error {
	for _, change := range pending {
		r.renderChange(change)

		accept := r.autoAccept
		if !accept {
			accept = r.promptAccept()
		}
		verb := "reject"
		if accept {
			verb = "accept"
		}

		var result struct {
			ChangeID string `json:"changeId"`
			Outcome  string `json:"outcome"`
		}
		path := fmt.Sprintf("/api/v1/sessions/%s/changes/%s/%s", r.sessionID, change.ID, verb)
		if err := r.client.postJSON(path, struct{}{}, &result); err != nil {
			return inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "resolving change %s", change.ID)
		}
		fmt.Fprintf(r.out, "Change %s\n", result.Outcome)
	}
	return nil
}

func (r *chatRunner) renderChange(change *agent.PendingChange) {
	fmt.Fprintf(r.out, "\n--- %s\n", change.Description)
	if change.Diff == nil {
		return
	}
	if change.Diff.Skipped {
		fmt.Fprintf(r.out, "(diff skipped, content too large: +%d -%d lines)\n",
			change.Diff.Stats.Added, change.Diff.Stats.Removed)
		return
	}
	for _, line := range change.Diff.Lines {
		switch line.Kind {
		case diff.KindAdded:
			fmt.Fprintf(r.out, "+ %s\n", line.Text)
		case diff.KindRemoved:
			fmt.Fprintf(r.out, "- %s\n", line.Text)
		case diff.KindSeparator:
			fmt.Fprintf(r.out, "  (%d unchanged lines)\n", line.Omitted)
		default:
			fmt.Fprintf(r.out, "  %s\n", line.Text)
		}
	}
	if change.Diff.Truncated {
		fmt.Fprintln(r.out, "  (diff truncated)")
	}
	fmt.Fprintf(r.out, "+%d -%d lines\n", change.Diff.Stats.Added, change.Diff.Stats.Removed)
}

func (r *chatRunner) promptAccept() bool {
	fmt.Fprint(r.out, "Accept this change? [y/N] ")
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
