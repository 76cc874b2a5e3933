package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/pipeline"
)

var (
	askStream       bool
	askJSON         bool
	askTopK         int
	askJurisdiction string
	askDocType      string
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a legal question and validate the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ask"); err != nil {
			return err
		}
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		query := strings.Join(args, " ")
		opts := pipeline.QueryOptions{
			TopK:         askTopK,
			Jurisdiction: askJurisdiction,
			DocumentType: model.DocumentType(askDocType),
		}

		if askStream {
			return runStreamingAsk(cmd, e, query, opts)
		}

		answer, err := e.Pipeline.ProcessQuery(ctx, query, opts)
		if err != nil {
			return eris.Wrap(err, "process query")
		}
		return printAnswer(cmd, answer)
	},
}

func runStreamingAsk(cmd *cobra.Command, e *env, query string, opts pipeline.QueryOptions) error {
	out := cmd.OutOrStdout()
	for ev := range e.Pipeline.StreamQuery(cmd.Context(), query, opts) {
		switch ev.Type {
		case pipeline.EventSourcesFound:
			fmt.Fprintf(out, "-- %d source(s) retrieved\n", len(ev.Sources))
		case pipeline.EventChunk:
			fmt.Fprint(out, ev.Chunk)
		case pipeline.EventValidationComplete:
			fmt.Fprintf(out, "\n-- %d citation(s) validated\n", len(ev.Validations))
		case pipeline.EventDone:
			fmt.Fprintln(out)
			return printAnswer(cmd, ev.Answer)
		case pipeline.EventError:
			return ev.Err
		}
	}
	return nil
}

func printAnswer(cmd *cobra.Command, answer *model.Answer) error {
	out := cmd.OutOrStdout()

	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Fprintln(out, answer.Text)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Record:     %s\n", answer.RecordID)
	fmt.Fprintf(out, "Confidence: %.0f/100  (quality %.0f, quantity %.0f, alignment %.0f, authority %.0f, recency %.0f, consensus %.0f)\n",
		answer.Confidence.Overall,
		answer.Confidence.SourceQuality,
		answer.Confidence.SourceQuantity,
		answer.Confidence.SemanticAlignment,
		answer.Confidence.Authority,
		answer.Confidence.Recency,
		answer.Confidence.Consensus,
	)

	verified := 0
	for _, v := range answer.Validations {
		if v.Status == model.StatusVerified {
			verified++
		}
	}
	fmt.Fprintf(out, "Citations:  %d extracted, %d verified\n", len(answer.Citations), verified)

	for _, flag := range answer.Flags {
		fmt.Fprintf(out, "Flag:       [%s/%s] %s\n", flag.Type, flag.Severity, flag.Description)
	}
	if answer.Degraded {
		fmt.Fprintf(out, "Degraded:   %s\n", answer.DegradedReason)
	}
	if answer.ReviewRequired {
		fmt.Fprintf(out, "Review:     task %s opened\n", answer.ReviewTaskID)
	}

	return nil
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it generates")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full answer as JSON")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of sources to retrieve (default from config)")
	askCmd.Flags().StringVar(&askJurisdiction, "jurisdiction", "", "restrict retrieval to one jurisdiction")
	askCmd.Flags().StringVar(&askDocType, "doc-type", "", "restrict retrieval to one document type (statute, case_law, regulation, secondary)")
	rootCmd.AddCommand(askCmd)
}
