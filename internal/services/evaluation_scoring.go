package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yoockh/groupspeak/internal/models"
)

const scoringSystemInstruction = `You are an examiner assessing a group discussion held in English.
Score every listed participant on each rubric category independently, as an integer from 0 to 7,
and give a short comment justifying each score. Do not assume scores across categories correlate:
a strong speaker may still collaborate poorly. Judge only what appears in the transcript.
Answer with a single JSON object and nothing else, using exactly this shape:
{"participants":[{"label":"A","scores":{"content":{"score":0,"comment":""},"communication":{"score":0,"comment":""},"collaboration":{"score":0,"comment":""},"leadership":{"score":0,"comment":""}}}]}`

type scoringRequest struct {
	Topic        string   `json:"topic"`
	Rubric       string   `json:"rubric"`
	Categories   []string `json:"categories"`
	Participants []string `json:"participants"`
	Transcript   string   `json:"transcript"`
}

func buildScoringPrompt(topic, rubric, transcript string, labels []string) (string, error) {
	speakers := make([]string, len(labels))
	for i, l := range labels {
		speakers[i] = l + " (" + SpeakerName(l) + ")"
	}
	b, err := json.MarshalIndent(scoringRequest{
		Topic:        topic,
		Rubric:       rubric,
		Categories:   models.RubricCategories,
		Participants: speakers,
		Transcript:   transcript,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return "Evaluate the following discussion.\n" + string(b), nil
}

type categoryScore struct {
	Score   *float64 `json:"score"`
	Comment string   `json:"comment"`
}

type scoredParticipant struct {
	Label  string                   `json:"label"`
	Scores map[string]categoryScore `json:"scores"`
}

type scoringResponse struct {
	Participants []scoredParticipant `json:"participants"`
}

// ParticipantScore is a validated score card for one label.
type ParticipantScore struct {
	Label    string
	Scores   map[string]int
	Comments map[string]string
	Raw      json.RawMessage
}

// parseScoringResponse accepts the whole response or nothing. Every participant
// must carry all rubric categories with integer scores in range.
func parseScoringResponse(text string) ([]ParticipantScore, error) {
	text = stripCodeFence(text)

	var envelope struct {
		Participants []json.RawMessage `json:"participants"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Participants) == 0 {
		return nil, fmt.Errorf("response has no participants")
	}

	out := make([]ParticipantScore, 0, len(envelope.Participants))
	seen := make(map[string]bool)
	for i, raw := range envelope.Participants {
		var p scoredParticipant
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		label := normalizeLabel(p.Label)
		if label == "" {
			return nil, fmt.Errorf("participant %d: missing label", i)
		}
		if seen[label] {
			return nil, fmt.Errorf("participant %s scored twice", label)
		}
		seen[label] = true

		card := ParticipantScore{
			Label:    label,
			Scores:   make(map[string]int, len(models.RubricCategories)),
			Comments: make(map[string]string, len(models.RubricCategories)),
			Raw:      raw,
		}
		for _, cat := range models.RubricCategories {
			cs, ok := p.Scores[cat]
			if !ok || cs.Score == nil {
				return nil, fmt.Errorf("participant %s: missing %s score", label, cat)
			}
			v := *cs.Score
			if v != math.Trunc(v) || v < models.MinScore || v > models.MaxScore {
				return nil, fmt.Errorf("participant %s: %s score %v outside %d-%d", label, cat, v, models.MinScore, models.MaxScore)
			}
			card.Scores[cat] = int(v)
			card.Comments[cat] = strings.TrimSpace(cs.Comment)
		}
		out = append(out, card)
	}
	return out, nil
}

// normalizeLabel reduces "Participant A", "participant a" and "A" to "A".
func normalizeLabel(raw string) string {
	label := strings.ToUpper(strings.TrimSpace(raw))
	return strings.TrimSpace(strings.TrimPrefix(label, "PARTICIPANT"))
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (p ParticipantScore) evaluation(sessionID, userID, id string) models.Evaluation {
	return models.Evaluation{
		ID:                   id,
		SessionID:            sessionID,
		UserID:               userID,
		Label:                p.Label,
		ContentScore:         p.Scores[models.CategoryContent],
		ContentComment:       p.Comments[models.CategoryContent],
		CommunicationScore:   p.Scores[models.CategoryCommunication],
		CommunicationComment: p.Comments[models.CategoryCommunication],
		CollaborationScore:   p.Scores[models.CategoryCollaboration],
		CollaborationComment: p.Comments[models.CategoryCollaboration],
		LeadershipScore:      p.Scores[models.CategoryLeadership],
		LeadershipComment:    p.Comments[models.CategoryLeadership],
		Raw:                  []byte(p.Raw),
	}
}
