package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/ansuz/internal/apiclient"
	"github.com/starford/ansuz/internal/markdown"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/tree"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FCFCFA"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#727072"))
	summaryStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#78DCE8"))
	branchStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B595C"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6188"))
)

// PrintTree writes the note forest of the local library (or of the remote
// server with WithRemote) to the configured output.
func PrintTree(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stderr)

	var (
		roots  []*tree.Node
		source string
	)
	if app.remote {
		client := apiclient.New(cfg.Remote.URL, apiclient.WithToken(cfg.Remote.Token))
		if roots, err = client.Tree(ctx); err != nil {
			return fmt.Errorf("fetch tree: %w", err)
		}
		source = cfg.Remote.URL
	} else {
		lib, err := openLibrary(cfg, logger)
		if err != nil {
			return err
		}
		defer lib.Close()
		notes, err := lib.List(ctx)
		if err != nil {
			return fmt.Errorf("list notes: %w", err)
		}
		roots = tree.Build(notes)
		source = lib.Location()
	}

	fmt.Fprintln(app.out, headerStyle.Render(source))
	if len(roots) == 0 {
		fmt.Fprintln(app.out, idStyle.Render("(no notes)"))
		return nil
	}
	renderForest(app.out, roots, "")
	return nil
}

func renderForest(w io.Writer, nodes []*tree.Node, prefix string) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		line := branchStyle.Render(prefix+branch) + titleStyle.Render(n.Title) + " " + idStyle.Render(string(n.ID))
		if s := markdown.Parse(n.Content).Summary; s != "" {
			line += "  " + summaryStyle.Render(s)
		}
		fmt.Fprintln(w, line)
		renderForest(w, n.Children, prefix+indent)
	}
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they do
// not corrupt the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stderr)

	var notes mcpserver.Notes
	if app.remote {
		notes = apiclient.New(cfg.Remote.URL, apiclient.WithToken(cfg.Remote.Token))
		logger.Info("MCP using remote server", slog.String("url", cfg.Remote.URL))
	} else {
		lib, err := openLibrary(cfg, logger)
		if err != nil {
			return err
		}
		defer lib.Close()
		notes = lib
		logger.Info("MCP using local library", slog.String("location", lib.Location()))
	}

	srv := mcpserver.New(notes, strings.TrimPrefix(app.version, "v"), logger)
	return srv.ServeStdio()
}
