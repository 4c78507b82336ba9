// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Eihwaz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/eihwaz/internal/kb"
	"github.com/starford/eihwaz/internal/models"
)

// Server wraps the MCP server with Eihwaz tools. Tools address entries by
// /-separated paths from the root; mutating tools act as a fixed principal.
type Server struct {
	mcp       *server.MCPServer
	svc       *kb.Service
	principal string
}

// New creates a new MCP server with all Eihwaz tools registered.
func New(svc *kb.Service, principal string) *Server {
	s := &Server{svc: svc, principal: principal}

	s.mcp = server.NewMCPServer(
		"Eihwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the sub-directories and notes of a directory."),
		mcp.WithString("path", mcp.Description("Path of the directory (empty for the root)")),
	), s.listDirectory)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note (e.g. docs/readme)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_directory",
		mcp.WithDescription("Create a directory at the given path. The parent directory must already exist."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the new directory")),
	), s.createDirectory)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note at the given path. The parent directory must already exist. "+
			"A directory and a note may share a name; paths prefer the directory, so pick distinct names."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the new note")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the content of an existing note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New note content")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("move_directory",
		mcp.WithDescription("Move a directory to a new location. The last segment of new_path becomes "+
			"its new name. Moving a directory into its own subtree is rejected."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Current path of the directory")),
		mcp.WithString("new_path", mcp.Required(), mcp.Description("Target path, e.g. archive/projects")),
	), s.moveDirectory)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("delete_directory",
		mcp.WithDescription("Delete a directory and everything beneath it. The root cannot be deleted."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the directory")),
	), s.deleteDirectory)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

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

// splitPath splits a /-separated path into its parent path and final name.
func splitPath(p string) (parent, name string) {
	p = strings.Trim(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

func (s *Server) resolveDir(ctx context.Context, p string) (models.DirID, error) {
	entry, err := s.svc.Resolve(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("not found: %s", p)
	}
	if entry.Kind != models.KindDirectory {
		return 0, fmt.Errorf("not a directory: %s", p)
	}
	return models.DirID(entry.ID), nil
}

func (s *Server) resolveNote(ctx context.Context, p string) (models.NoteID, error) {
	entry, err := s.svc.Resolve(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("not found: %s", p)
	}
	if entry.Kind != models.KindNote {
		return 0, fmt.Errorf("not a note: %s", p)
	}
	return models.NoteID(entry.ID), nil
}

func (s *Server) listDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := ""
	if v, err := req.RequireString("path"); err == nil {
		p = v
	}
	dir, err := s.resolveDir(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, listing, err := s.svc.Directory(ctx, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(listing, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.resolveNote(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Note(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) createDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parentPath, name := splitPath(p)
	if name == "" {
		return mcp.NewToolResultError("path must name a new directory"), nil
	}
	parent, err := s.resolveDir(ctx, parentPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.CreateDirectory(ctx, s.principal, parent, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", p)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parentPath, name := splitPath(p)
	if name == "" {
		return mcp.NewToolResultError("path must name a new note"), nil
	}
	parent, err := s.resolveDir(ctx, parentPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.CreateNote(ctx, s.principal, parent, name, content); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", p)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.resolveNote(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.UpdateNote(ctx, s.principal, id, content); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", p)), nil
}

func (s *Server) moveDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newPath, err := req.RequireString("new_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := s.resolveDir(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parentPath, name := splitPath(newPath)
	if name == "" {
		return mcp.NewToolResultError("new_path must name the moved directory"), nil
	}
	parent, err := s.resolveDir(ctx, parentPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.MoveDirectory(ctx, s.principal, dir, parent, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s to %s", p, newPath)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.resolveNote(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNote(ctx, s.principal, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", p)), nil
}

func (s *Server) deleteDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := s.resolveDir(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteDirectory(ctx, s.principal, dir); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", p)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchNotes(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
