package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/llmcompare/internal/backend"
	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/render"
	"github.com/noah-isme/llmcompare/internal/service"
)

// writeClipboard is swapped in tests.
var writeClipboard = clipboard.WriteAll

type askOptions struct {
	info    string
	style   string
	width   int
	copy    bool
	asJSON  bool
	verbose bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and compare the direct answer with the refined one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.info, "info", "", "context URLs (at most 3)")
	cmd.Flags().StringVar(&opts.style, "style", "dracula", "glamour style for the rendered answers")
	cmd.Flags().IntVar(&opts.width, "width", 80, "word wrap width")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "copy the final answer markdown to the clipboard")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the raw result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log backend calls to stderr")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts askOptions) error {
	cfg := getConfig(cmd)
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	}

	validation := service.ValidateURLs(opts.info)
	for _, alert := range validation.Alerts {
		fmt.Fprintln(stderr, alert)
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	svc := service.NewSubmissionService(client, service.NewMemorySessionStore(), nil, nil, service.SubmissionConfig{}, logger)
	result, err := svc.Submit(cmd.Context(), dto.SubmitRequest{
		UserQuestion:   question,
		AdditionalInfo: validation.Value,
	}, service.SubmitOptions{
		ClientID: "cli",
		Progress: func(event dto.ProgressEvent) {
			fmt.Fprintln(stderr, event.Message)
		},
	})
	if err != nil {
		return fmt.Errorf("處理請求時發生錯誤: %w", err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if err := printResult(stdout, result, opts); err != nil {
		return err
	}

	if opts.copy {
		copyFinalAnswer(stderr, result)
	}
	return nil
}

func printResult(w io.Writer, result dto.SubmissionResult, opts askOptions) error {
	out, err := render.Terminal(resultMarkdown(result), opts.style, opts.width)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func copyFinalAnswer(w io.Writer, result dto.SubmissionResult) {
	if result.Final == nil {
		fmt.Fprintln(w, "沒有可複製的最終答案")
		return
	}
	markdown := result.Final.Markdown
	if markdown == "" {
		markdown = result.Final.Text
	}
	if err := writeClipboard(markdown); err != nil {
		fmt.Fprintf(w, "複製失敗: %v\n", err)
		return
	}
	fmt.Fprintln(w, "已複製")
}
