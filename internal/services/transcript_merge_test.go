package services

import (
	"testing"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
)

func TestMergeTranscripts_OrdersByAbsoluteTime(t *testing.T) {
	T := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []SpeakerTranscript{
		{Label: "A", StartAt: T, Segments: []models.TranscriptSegment{{Start: 5, End: 6, Text: "hello"}}},
		{Label: "B", StartAt: T.Add(2 * time.Second), Segments: []models.TranscriptSegment{{Start: 1, End: 2, Text: "world"}}},
	}

	content, lines := MergeTranscripts(in)

	want := "Participant B: world\nParticipant A: hello"
	if content != want {
		t.Fatalf("got %q, want %q", content, want)
	}
	if !lines[0].At.Equal(T.Add(3*time.Second)) || !lines[1].At.Equal(T.Add(5*time.Second)) {
		t.Fatalf("unexpected absolute times: %v, %v", lines[0].At, lines[1].At)
	}
}

func TestMergeTranscripts_Deterministic(t *testing.T) {
	T := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []SpeakerTranscript{
		{Label: "A", StartAt: T, Segments: []models.TranscriptSegment{
			{Start: 0.5, Text: "I think"},
			{Start: 4.25, Text: "so"},
			{Start: 9, Text: "   "},
		}},
		{Label: "B", StartAt: T.Add(250 * time.Millisecond), Segments: []models.TranscriptSegment{
			{Start: 0.25, Text: "same time"},
			{Start: 2, Text: "agreed"},
		}},
		{Label: "C", StartAt: T.Add(-time.Second), Segments: nil},
	}

	first, lines := MergeTranscripts(in)
	for i := 0; i < 20; i++ {
		again, _ := MergeTranscripts(in)
		if again != first {
			t.Fatalf("merge is not deterministic:\n%q\n%q", first, again)
		}
	}

	// A at T+0.5 and B at T+0.5 tie; input order wins
	want := "Participant A: I think\nParticipant B: same time\nParticipant B: agreed\nParticipant A: so"
	if first != want {
		t.Fatalf("got %q, want %q", first, want)
	}
	if len(lines) != 4 {
		t.Fatalf("blank segments should be dropped, got %d lines", len(lines))
	}
}

func TestSpeakerLabels_JoinOrderHumansOnly(t *testing.T) {
	ps := []models.Participant{
		{ID: "1", UserID: strPtr("u1")},
		{ID: "2", IsAI: true},
		{ID: "3", UserID: strPtr("u3")},
		{ID: "4", UserID: strPtr("u4")},
	}
	labels, order := SpeakerLabels(ps)

	if len(order) != 3 || order[0] != "A" || order[2] != "C" {
		t.Fatalf("unexpected order: %v", order)
	}
	if labels["A"] != "u1" || labels["B"] != "u3" || labels["C"] != "u4" {
		t.Fatalf("unexpected labels: %v", labels)
	}
}
