package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"doulia.com/workflow-audit/internal/report"
)

func runReset(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.sessions.Get(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("session %q: %w", sessionID, err)
	}
	session.Reset(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset, a new audit can start.\n", session.ID())
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.sessions.Get(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("session %q: %w", sessionID, err)
	}

	log.Info("Generating report", "session", session.ID(), "step", session.State().AuditStep)
	r, err := session.GenerateReport(cmd.Context())
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), err)
	}

	out, err := renderMarkdown(report.Markdown(r))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	fmt.Fprintf(cmd.OutOrStdout(), "\nPartager : %s\n", report.ShareURL(r))
	return nil
}

const reportFailureNotice = "Une erreur s'est produite lors de la génération du rapport."

// reportFailure shows the user-facing notice and returns the wrapped cause.
func reportFailure(w io.Writer, err error) error {
	fmt.Fprintln(w, reportFailureNotice)
	return fmt.Errorf("report generation failed: %w", err)
}

func renderMarkdown(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}

// parseOrigin reduces an origin URL to the host pattern the websocket accept
// check compares against.
func parseOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "*" {
		return origin, nil
	}
	if !strings.Contains(origin, "://") {
		return origin, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	return u.Host, nil
}
