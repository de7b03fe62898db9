package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/suggestkit/suggestkit/pkg/suggest"
)

// suggestCmd runs a JSON conversation through the configured model.
var suggestCmd = &cobra.Command{
	Use:   "suggest [conversation.json]",
	Short: "Suggest actions for a conversation",
	Long: `Suggest actions for a conversation given as JSON, from a file or stdin.

The conversation document is a JSON object with a "messages" array; each
message carries "text", and optionally "user_id", "reference_time_ms" and
"locales".

Examples:
  # Read a conversation from a file
  suggestctl suggest --model model.yaml conversation.json

  # Read from stdin
  echo '{"messages":[{"text":"meet at 5pm","locales":"en"}]}' | suggestctl suggest --model model.yaml -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSuggest,
}

// conversationDoc is the CLI's JSON input shape.
type conversationDoc struct {
	Messages []struct {
		Text            string `json:"text"`
		UserID          int    `json:"user_id"`
		ReferenceTimeMs int64  `json:"reference_time_ms"`
		Locales         string `json:"locales"`
	} `json:"messages"`
}

// responseDoc is the CLI's JSON output shape.
type responseDoc struct {
	Actions []actionDoc `json:"actions"`

	SensitivityScore float64 `json:"sensitivity_score"`
	TriggeringScore  float64 `json:"triggering_score"`

	FilteredSensitivity        bool `json:"filtered_sensitivity,omitempty"`
	FilteredMinTriggeringScore bool `json:"filtered_min_triggering_score,omitempty"`
	FilteredLocaleMismatch     bool `json:"filtered_locale_mismatch,omitempty"`
	FilteredLowConfidence      bool `json:"filtered_low_confidence,omitempty"`
}

type actionDoc struct {
	Type         string  `json:"type"`
	ResponseText string  `json:"response_text,omitempty"`
	Score        float64 `json:"score"`
	EntityData   []byte  `json:"entity_data,omitempty"`
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Model.Path == "" {
		return fmt.Errorf("no model file: set --model or model.path in config")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	engine, err := suggest.NewEngineFromPath(cfg.Model.Path,
		suggest.WithLogger(logger),
		suggest.WithMatchTimeout(cfg.Model.MatchTimeout),
	)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	input, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	var doc conversationDoc
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parsing conversation: %w", err)
	}
	conversation := &suggest.Conversation{}
	for _, m := range doc.Messages {
		conversation.Messages = append(conversation.Messages, suggest.Message{
			Text:            m.Text,
			UserID:          m.UserID,
			ReferenceTimeMs: m.ReferenceTimeMs,
			Locales:         m.Locales,
		})
	}

	response, err := engine.SuggestActions(cmd.Context(), conversation)
	if err != nil {
		return fmt.Errorf("suggesting actions: %w", err)
	}

	out := responseDoc{
		SensitivityScore:           response.SensitivityScore,
		TriggeringScore:            response.TriggeringScore,
		FilteredSensitivity:        response.FilteredSensitivity,
		FilteredMinTriggeringScore: response.FilteredMinTriggeringScore,
		FilteredLocaleMismatch:     response.FilteredLocaleMismatch,
		FilteredLowConfidence:      response.FilteredLowConfidence,
		Actions:                    make([]actionDoc, 0, len(response.Actions)),
	}
	for _, a := range response.Actions {
		out.Actions = append(out.Actions, actionDoc{
			Type:         a.Type,
			ResponseText: a.ResponseText,
			Score:        a.Score,
			EntityData:   a.EntityData,
		})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// readInput reads the conversation document from the file argument, or from
// stdin when the argument is absent or "-".
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	input, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading conversation file: %w", err)
	}
	return input, nil
}
