package splitter

import (
	"context"
	"fmt"
	"log/slog"

	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/services"
	"meetingnotesd/internal/services/llm"
	"meetingnotesd/internal/transcript"
)

const detectSystemPrompt = `You analyze meeting transcripts. Decide whether the transcript covers a single meeting or multiple distinct back-to-back meetings. Different agenda items in one meeting do NOT count as multiple meetings. Look for hard breaks: goodbyes followed by fresh greetings, a complete change of participants, or a new call starting.

Respond with a JSON object:
{"multiple_meetings": bool, "boundaries": [{"confidence": 0.0-1.0, "text_before": "last ~10 words of the earlier meeting, verbatim", "text_after": "first ~10 words of the next meeting, verbatim"}]}

Report boundaries only when clearly present. When unsure, answer {"multiple_meetings": false, "boundaries": []}.`

// LLMDetector implements Detector with a chat completion model.
type LLMDetector struct {
	client *llm.Client
	logger *slog.Logger
}

// NewLLMDetector builds a detector backed by the given client.
func NewLLMDetector(client *llm.Client, logger *slog.Logger) *LLMDetector {
	return &LLMDetector{client: client, logger: logging.NewComponentLogger(logger, "splitter")}
}

// DetectBoundaries asks the model whether the transcript contains multiple
// meetings.
func (d *LLMDetector) DetectBoundaries(ctx context.Context, t *transcript.Transcript) (Detection, error) {
	prompt := fmt.Sprintf("Title: %s\n\nTranscript:\n%s", t.Title, t.Body)
	response, err := d.client.CompleteJSON(ctx, detectSystemPrompt, prompt)
	if err != nil {
		return Detection{}, err
	}

	var det Detection
	if err := llm.DecodeJSON(response, &det); err != nil {
		return Detection{}, services.Wrap(services.ErrDispatch, "split", "detect", "unparseable detection response", err)
	}

	d.logger.Debug("boundary detection complete",
		logging.String(logging.FieldTitle, t.Title),
		logging.Bool("multiple", det.MultipleMeetings),
		logging.Int("boundaries", len(det.Boundaries)))
	return det, nil
}
