package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
)

// sessionExport is the document written by `chatctl export`.
type sessionExport struct {
	SessionID  string               `json:"session_id" yaml:"session_id"`
	ExportedAt time.Time            `json:"exported_at" yaml:"exported_at"`
	Messages   []chat.Message       `json:"messages" yaml:"messages"`
	Deleted    []chat.DeletedRecord `json:"deleted_messages,omitempty" yaml:"deleted_messages,omitempty"`
}

// Exporter writes a session export in one format.
type Exporter interface {
	Export(doc sessionExport, w io.Writer) error
}

// JSONExporter exports sessions as indented JSON.
type JSONExporter struct{}

// Export writes doc as JSON.
func (JSONExporter) Export(doc sessionExport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// YAMLExporter exports sessions in YAML format.
type YAMLExporter struct{}

// Export writes doc as YAML.
func (YAMLExporter) Export(doc sessionExport, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(doc)
}

func exporterFor(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return JSONExporter{}, nil
	case "yaml", "yml":
		return YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format         string
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := exporterFor(format)
			if err != nil {
				return err
			}

			return a.withService(cmd, func(ctx context.Context, svc *chatservice.Service) error {
				messages, err := svc.ListHistory(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to read history: %w", err)
				}
				doc := sessionExport{
					SessionID:  args[0],
					ExportedAt: time.Now().UTC().Truncate(time.Second),
					Messages:   messages,
				}
				if includeDeleted {
					doc.Deleted, err = svc.ListDeleted(ctx, args[0])
					if err != nil {
						return fmt.Errorf("failed to read deleted history: %w", err)
					}
				}
				return exporter.Export(doc, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json or yaml")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Include restorable deleted messages")
	return cmd
}
