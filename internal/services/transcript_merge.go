package services

import (
	"sort"
	"strings"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
)

// SpeakerTranscript is one participant's submission with its speaker label resolved.
type SpeakerTranscript struct {
	Label    string
	StartAt  time.Time
	Segments []models.TranscriptSegment
}

// SpeakerName renders a label the way merged lines and the scoring prompt use it.
func SpeakerName(label string) string { return "Participant " + label }

// SpeakerLabels maps the first four human participants, in join order, to A-D.
func SpeakerLabels(ps []models.Participant) (labels map[string]string, order []string) {
	labels = make(map[string]string)
	for _, p := range models.HumanParticipants(ps) {
		if len(order) == models.MaxParticipants {
			break
		}
		label := string(rune('A' + len(order)))
		labels[label] = *p.UserID
		order = append(order, label)
	}
	return labels, order
}

// MergeTranscripts interleaves every segment by absolute time, startAt plus its
// offset. Equal times keep input order, so the output is a pure function of the input.
func MergeTranscripts(in []SpeakerTranscript) (string, []models.MergedLine) {
	lines := make([]models.MergedLine, 0)
	for _, t := range in {
		for _, seg := range t.Segments {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			offset := time.Duration(seg.Start * float64(time.Second))
			lines = append(lines, models.MergedLine{
				At:      t.StartAt.Add(offset).UTC(),
				Speaker: SpeakerName(t.Label),
				Text:    text,
			})
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].At.Before(lines[j].At) })

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Speaker)
		b.WriteString(": ")
		b.WriteString(l.Text)
	}
	return b.String(), lines
}
