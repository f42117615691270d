// Command classifyctl classifies a single image from the command line, either
// in process or against a running gRPC server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/example/ecoclassify/internal/config"
	"github.com/example/ecoclassify/internal/container"
	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/grpcapi"
	"github.com/example/ecoclassify/internal/logging"
	"github.com/example/ecoclassify/internal/severity"
)

type classifier interface {
	ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error)
	ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error)
}

// classifierFactory returns the classifier to use and a cleanup function.
type classifierFactory func(ctx context.Context, remote string, logger *zap.Logger) (classifier, func(), error)

func main() {
	if err := newRootCommand(defaultClassifier).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(factory classifierFactory) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "classifyctl",
		Short:         "Classify environmental issue images",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level (debug, info, warn, error)")

	root.AddCommand(newClassifyCommand(factory, &logLevel), newThresholdsCommand())
	return root
}

func newClassifyCommand(factory classifierFactory, logLevel *string) *cobra.Command {
	var (
		remote  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "classify <image path or URL>",
		Short: "Classify one image and print the result as JSON",
		Long: `Classify one image and print the result as JSON.

Examples:
  classifyctl classify ./pothole.jpg
  classifyctl classify https://example.com/dump.png
  classifyctl classify ./forest.webp --remote localhost:9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(*logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			uc, cleanup, err := factory(ctx, remote, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			target := args[0]
			var result *domain.ClassificationResult
			if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
				result, err = uc.ClassifyURL(ctx, target)
			} else {
				data, readErr := os.ReadFile(target)
				if readErr != nil {
					return fmt.Errorf("read image: %w", readErr)
				}
				result, err = uc.ClassifyUpload(ctx, data, mimetype.Detect(data).String())
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "gRPC address of a running server; empty runs the pipeline locally")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "overall timeout")
	return cmd
}

func newThresholdsCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Print the severity threshold table as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := severity.Default()
			if file != "" {
				loaded, err := severity.Load(file)
				if err != nil {
					return err
				}
				table = loaded
			}

			out, err := yaml.Marshal(table)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "validate and print this threshold file instead of the defaults")
	return cmd
}

func defaultClassifier(ctx context.Context, remote string, logger *zap.Logger) (classifier, func(), error) {
	if remote != "" {
		client, conn, err := grpcapi.DialClassifier(ctx, remote, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { conn.Close() }, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	c, err := container.New(cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	if c.ModelName == "" {
		return nil, nil, container.ErrModelNotConfigured
	}
	return c.UseCase, func() {}, nil
}
