package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"beadboard/internal/bd"
	"beadboard/internal/logger"
	"beadboard/internal/project"
)

// dispatch handles one inbound frame end to end: parse the envelope, run
// the handler, send exactly one correlated reply, then kick the broadcast
// refresh if the handler mutated shared state. A catch-all boundary keeps
// one bad message from taking down the rest of the session.
func (s *Server) dispatch(ctx context.Context, c *Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "conn", c.ID, "panic", r)
		}
	}()

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// No trustworthy id to correlate a reply to; drop the frame.
		logger.Debug("dropping malformed frame", "conn", c.ID, "error", err)
		return
	}
	if req.ID == "" || req.Type == "" {
		logger.Debug("dropping frame without id/type", "conn", c.ID)
		return
	}

	// Handlers run against a background context: a client disconnecting
	// does not abort its in-flight bd invocation, which completes and is
	// simply discarded when the reply write fails on the closed socket.
	reply, mutated := s.handle(context.Background(), c, req)
	if err := c.send(ctx, reply); err != nil {
		logger.Debug("reply write failed", "conn", c.ID, "id", req.ID, "error", err)
	}
	if mutated != "" {
		s.Refresh(mutated)
	}
}

// handle routes one request to its handler. It returns the reply and, for
// successful mutations, the project path whose watchers need a snapshot.
func (s *Server) handle(ctx context.Context, c *Conn, req Request) (Reply, string) {
	switch req.Type {
	case CmdSetProject:
		return s.handleSetProject(c, req), ""
	case CmdSubscribeList:
		return s.handleSubscribeList(ctx, c, req), ""
	case CmdShowIssue:
		return s.handleShowIssue(ctx, c, req), ""
	case CmdCreateIssue:
		return s.handleCreateIssue(ctx, c, req)
	case CmdUpdateStatus:
		return s.handleFieldUpdate(ctx, c, req, "--status")
	case CmdUpdatePriority:
		return s.handleFieldUpdate(ctx, c, req, "--priority")
	case CmdUpdateTitle:
		return s.handleFieldUpdate(ctx, c, req, "--title")
	case CmdUpdateType:
		return s.handleFieldUpdate(ctx, c, req, "--type")
	case CmdUpdateEstimate:
		return s.handleFieldUpdate(ctx, c, req, "--estimate")
	case CmdUpdateExternalRef:
		return s.handleFieldUpdate(ctx, c, req, "--external-ref")
	case CmdDeleteIssue:
		return s.handleDeleteIssue(ctx, c, req)
	case CmdLabelAdd:
		return s.handleLabel(ctx, c, req, "add")
	case CmdLabelRemove:
		return s.handleLabel(ctx, c, req, "remove")
	case CmdAddComment:
		return s.handleAddComment(ctx, c, req)
	case CmdGetSeen:
		return s.handleGetSeen(c, req), ""
	case CmdMarkSeen:
		return s.handleMarkSeen(c, req, true), ""
	case CmdMarkUnseen:
		return s.handleMarkSeen(c, req, false), ""
	case CmdGetProjectInfo:
		return s.handleProjectInfo(c, req), ""
	case CmdOpenInFinder:
		return s.handleOpenInFinder(c, req), ""
	default:
		return errReply(req, CodeUnknownType, fmt.Sprintf("unknown command type %q", req.Type)), ""
	}
}

// projectFor resolves the effective project for a command: an explicit
// project identifier in the payload is resolved ad hoc without touching
// the connection's binding; otherwise the bound project is used.
func (s *Server) projectFor(c *Conn, req Request) (string, *Reply) {
	var ref struct {
		Project string `json:"project"`
	}
	if len(req.Payload) > 0 {
		_ = json.Unmarshal(req.Payload, &ref)
	}
	if ref.Project != "" {
		dir, err := s.resolver.Resolve(ref.Project)
		if err != nil {
			r := errReply(req, CodeInvalidProject, err.Error())
			return "", &r
		}
		return dir, nil
	}
	if dir := c.Project(); dir != "" {
		return dir, nil
	}
	r := errReply(req, CodeNoProject, "no project bound; send set-project first")
	return "", &r
}

func (s *Server) handleSetProject(c *Conn, req Request) Reply {
	var p struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.Path == "" {
		return errReply(req, CodeInvalidPayload, "path is required")
	}

	dir, err := s.resolver.Resolve(p.Path)
	if err != nil {
		return errReply(req, CodeInvalidProject, err.Error())
	}

	prev := c.bind(dir)
	if s.watcher != nil && prev != dir {
		if prev != "" {
			s.watcher.Release(prev)
		}
		s.watcher.Acquire(dir)
	}
	logger.Info("project bound", "conn", c.ID, "project", dir)
	return okReply(req, ProjectInfo{Path: dir, Name: project.Name(dir)})
}

func (s *Server) handleSubscribeList(ctx context.Context, c *Conn, req Request) Reply {
	var p struct {
		List string `json:"list"`
	}
	if len(req.Payload) > 0 {
		_ = json.Unmarshal(req.Payload, &p)
	}
	if p.List == "" {
		p.List = "all"
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep
	}

	c.subscribe(p.List)

	var items []bd.Issue
	if err := s.gateway.InvokeJSON(ctx, dir, &items, "list", "--json"); err != nil {
		return errReply(req, CodeFetchError, err.Error())
	}
	if items == nil {
		items = []bd.Issue{}
	}
	return okReply(req, ListPayload{List: p.List, Items: items})
}

func (s *Server) handleShowIssue(ctx context.Context, c *Conn, req Request) Reply {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" {
		return errReply(req, CodeInvalidPayload, "id is required")
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep
	}

	issue, err := s.fetchIssue(ctx, dir, p.ID)
	if err != nil {
		return errReply(req, CodeShowError, err.Error())
	}
	return okReply(req, issue)
}

func (s *Server) handleCreateIssue(ctx context.Context, c *Conn, req Request) (Reply, string) {
	var p struct {
		Title       string   `json:"title"`
		Type        string   `json:"type"`
		Priority    *int     `json:"priority"`
		Description string   `json:"description"`
		Labels      []string `json:"labels"`
		ParentID    string   `json:"parentId"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.Title == "" {
		return errReply(req, CodeInvalidPayload, "title is required"), ""
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep, ""
	}

	args := []string{"create", p.Title}
	if p.Type != "" {
		args = append(args, "-t", p.Type)
	}
	if p.Priority != nil {
		args = append(args, "-p", strconv.Itoa(*p.Priority))
	}
	if p.Description != "" {
		args = append(args, "-d", p.Description)
	}
	if len(p.Labels) > 0 {
		args = append(args, "--labels", strings.Join(p.Labels, ","))
	}
	if p.ParentID != "" {
		args = append(args, "--parent", p.ParentID)
	}
	args = append(args, "--json")

	var created bd.Issue
	if err := s.gateway.InvokeJSON(ctx, dir, &created, args...); err != nil {
		return errReply(req, CodeCreateError, err.Error()), ""
	}
	return okReply(req, created), dir
}

// handleFieldUpdate covers the single-field mutators; they differ only in
// the bd update flag and the shape of the payload value.
func (s *Server) handleFieldUpdate(ctx context.Context, c *Conn, req Request, flag string) (Reply, string) {
	var p struct {
		ID          string          `json:"id"`
		Status      string          `json:"status"`
		Priority    *int            `json:"priority"`
		Title       string          `json:"title"`
		Type        string          `json:"type"`
		Estimate    json.RawMessage `json:"estimate"`
		ExternalRef string          `json:"externalRef"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" {
		return errReply(req, CodeInvalidPayload, "id is required"), ""
	}

	var value string
	switch flag {
	case "--status":
		value = p.Status
	case "--priority":
		if p.Priority != nil {
			value = strconv.Itoa(*p.Priority)
		}
	case "--title":
		value = p.Title
	case "--type":
		value = p.Type
	case "--estimate":
		value = rawScalar(p.Estimate)
	case "--external-ref":
		value = p.ExternalRef
	}
	if value == "" {
		return errReply(req, CodeInvalidPayload, fmt.Sprintf("missing value for %s", req.Type)), ""
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep, ""
	}

	res := s.gateway.Invoke(ctx, dir, "update", p.ID, flag, value, "--json")
	if res.ExitCode != 0 {
		return errReply(req, CodeUpdateError, invokeErrMessage(res)), ""
	}
	return okReply(req, nil), dir
}

func (s *Server) handleDeleteIssue(ctx context.Context, c *Conn, req Request) (Reply, string) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" {
		return errReply(req, CodeInvalidPayload, "id is required"), ""
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep, ""
	}

	res := s.gateway.Invoke(ctx, dir, "delete", p.ID, "--force", "--json")
	if res.ExitCode != 0 {
		return errReply(req, CodeDeleteError, invokeErrMessage(res)), ""
	}
	return okReply(req, nil), dir
}

func (s *Server) handleLabel(ctx context.Context, c *Conn, req Request, op string) (Reply, string) {
	var p struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" || p.Label == "" {
		return errReply(req, CodeInvalidPayload, "id and label are required"), ""
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep, ""
	}

	res := s.gateway.Invoke(ctx, dir, "label", op, p.ID, p.Label, "--json")
	if res.ExitCode != 0 {
		return errReply(req, CodeLabelError, invokeErrMessage(res)), ""
	}
	return okReply(req, nil), dir
}

// handleAddComment appends the comment, then re-fetches the issue so the
// reply carries refreshed detail; two independent bd invocations.
func (s *Server) handleAddComment(ctx context.Context, c *Conn, req Request) (Reply, string) {
	var p struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" || p.Content == "" {
		return errReply(req, CodeInvalidPayload, "id and content are required"), ""
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep, ""
	}

	res := s.gateway.Invoke(ctx, dir, "comment", p.ID, p.Content, "--json")
	if res.ExitCode != 0 {
		return errReply(req, CodeCommentError, invokeErrMessage(res)), ""
	}

	issue, err := s.fetchIssue(ctx, dir, p.ID)
	if err != nil {
		return errReply(req, CodeCommentError, err.Error()), ""
	}
	return okReply(req, issue), dir
}

func (s *Server) handleGetSeen(c *Conn, req Request) Reply {
	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep
	}
	return okReply(req, s.seen.Read(dir))
}

func (s *Server) handleMarkSeen(c *Conn, req Request, mark bool) Reply {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" {
		return errReply(req, CodeInvalidPayload, "id is required")
	}

	dir, errRep := s.projectFor(c, req)
	if errRep != nil {
		return *errRep
	}

	var state any
	var err error
	if mark {
		state, err = s.seen.Mark(dir, p.ID)
	} else {
		state, err = s.seen.Unmark(dir, p.ID)
	}
	if err != nil {
		return errReply(req, CodeUpdateError, err.Error())
	}
	return okReply(req, state)
}

func (s *Server) handleProjectInfo(c *Conn, req Request) Reply {
	dir := c.Project()
	if dir == "" {
		return errReply(req, CodeNoProject, "no project bound")
	}
	return okReply(req, ProjectInfo{Path: dir, Name: project.Name(dir)})
}

// handleOpenInFinder opens the bound project directory in the host file
// browser. Best effort: the spawn is fire-and-forget.
func (s *Server) handleOpenInFinder(c *Conn, req Request) Reply {
	dir := c.Project()
	if dir == "" {
		return errReply(req, CodeNoProject, "no project bound")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", dir)
	case "windows":
		cmd = exec.Command("explorer", dir)
	default:
		cmd = exec.Command("xdg-open", dir)
	}
	if err := cmd.Start(); err != nil {
		logger.Warn("open project directory", "project", dir, "error", err)
	} else {
		go cmd.Wait()
	}
	return okReply(req, nil)
}

// fetchIssue reads one issue's full detail. bd show emits either a single
// object or a one-element array depending on version; accept both.
func (s *Server) fetchIssue(ctx context.Context, dir, id string) (bd.Issue, error) {
	var raw json.RawMessage
	if err := s.gateway.InvokeJSON(ctx, dir, &raw, "show", id, "--json"); err != nil {
		return bd.Issue{}, err
	}

	var issue bd.Issue
	if err := json.Unmarshal(raw, &issue); err == nil && issue.ID != "" {
		return issue, nil
	}
	var issues []bd.Issue
	if err := json.Unmarshal(raw, &issues); err == nil && len(issues) > 0 {
		return issues[0], nil
	}
	return bd.Issue{}, fmt.Errorf("%w: no issue in show output", bd.ErrDecode)
}

func invokeErrMessage(res bd.Result) string {
	msg := res.Stderr
	if msg == "" {
		msg = fmt.Sprintf("bd exited with code %d", res.ExitCode)
	}
	return msg
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}

