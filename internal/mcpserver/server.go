// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/markdown"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/notesync"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tree"
)

const (
	noteFormatURI      = "ansuz://note-format"
	defaultSearchLimit = 20
)

// Notes is the repository the tools work on: a local library or a remote
// server client.
type Notes interface {
	notesync.Repository
	Get(ctx context.Context, id models.NoteID) (models.Note, error)
	Search(ctx context.Context, query string, limit int) ([]storage.SearchHit, error)
}

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp    *server.MCPServer
	notes  Notes
	logger *slog.Logger
}

// New creates a new MCP server with all Ansuz tools registered.
func New(notes Notes, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{notes: notes, logger: logger}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes in creation order with id, parent id, title and a short summary."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Show the note hierarchy as an indented outline of titles and ids."),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note including its full Markdown content."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note, optionally below an existing parent. "+
			"Read the "+noteFormatURI+" resource or get_note_contract first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Markdown content")),
		mcp.WithString("parent_id", mcp.Description("Id of the parent note; empty for a top-level note")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the title and/or content of a note. Omitted fields keep their value."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New Markdown content (replaces the whole body)")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note and every note below it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the Ansuz note format. Call this before creating or updating notes."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format",
			mcp.WithResourceDescription("How Ansuz notes are structured."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError reports err to the model without failing the protocol call.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp: tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

type noteItem struct {
	ID       models.NoteID  `json:"id"`
	ParentID *models.NoteID `json:"parent_id,omitempty"`
	Title    string         `json:"title"`
	Summary  string         `json:"summary,omitempty"`
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.notes.List(ctx)
	if err != nil {
		return s.toolError("list_notes", err), nil
	}
	items := make([]noteItem, len(notes))
	for i, n := range notes {
		items[i] = noteItem{ID: n.ID, ParentID: n.ParentID, Title: n.Title, Summary: markdown.Parse(n.Content).Summary}
	}
	return jsonResult(items), nil
}

func (s *Server) getTree(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.notes.List(ctx)
	if err != nil {
		return s.toolError("get_tree", err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	var b strings.Builder
	writeOutline(&b, tree.Build(notes), 0)
	return mcp.NewToolResultText(b.String()), nil
}

func writeOutline(b *strings.Builder, nodes []*tree.Node, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(b, "%s- %s (%s)\n", strings.Repeat("  ", depth), n.Title, n.ID)
		writeOutline(b, n.Children, depth+1)
	}
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.Get(ctx, models.NoteID(id))
	if err != nil {
		return s.toolError("read_note", err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content := req.GetString("content", "")
	parent := models.ParentRef(models.NoteID(strings.TrimSpace(req.GetString("parent_id", ""))))

	n, err := s.notes.Create(ctx, models.NormalizeTitle(title), content, parent)
	if err != nil {
		return s.toolError("create_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	current, err := s.notes.Get(ctx, models.NoteID(id))
	if err != nil {
		return s.toolError("update_note", err), nil
	}
	title := req.GetString("title", current.Title)
	content := req.GetString("content", current.Content)

	if _, err := s.notes.Update(ctx, current.ID, models.NormalizeTitle(title), content); err != nil {
		return s.toolError("update_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.notes.Delete(ctx, models.NoteID(id)); err != nil {
		return s.toolError("delete_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	results, err := s.notes.Search(ctx, query, limit)
	if err != nil {
		return s.toolError("search_notes", err), nil
	}
	if results == nil {
		results = []storage.SearchHit{}
	}
	return jsonResult(results), nil
}

func (s *Server) getNoteContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
