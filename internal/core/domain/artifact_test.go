package domain

import "testing"

func TestArtifactTransitionsAreClosed(t *testing.T) {
	for _, s := range AllArtifactStatuses {
		if !s.Valid() {
			t.Fatalf("status %q not registered", s)
		}
		for _, next := range NextArtifactStatuses(s) {
			if !next.Valid() {
				t.Fatalf("%s -> %s leaves the state machine", s, next)
			}
		}
	}
	if ArtifactStatus("ready").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestArtifactTransitionEdges(t *testing.T) {
	cases := []struct {
		from, to ArtifactStatus
		want     bool
	}{
		{ArtifactPending, ArtifactProcessing, true},
		{ArtifactPending, ArtifactExtracted, false},
		{ArtifactProcessing, ArtifactExtracting, true},
		{ArtifactProcessing, ArtifactFailed, true},
		{ArtifactExtracting, ArtifactExtracted, true},
		{ArtifactExtracted, ArtifactApproved, true},
		{ArtifactExtracted, ArtifactPending, true},
		{ArtifactRejected, ArtifactApproved, true},
		{ArtifactFailed, ArtifactPending, true},
		{ArtifactFailed, ArtifactFailed, false},
		{ArtifactArchived, ArtifactPending, false},
		{ArtifactArchived, ArtifactFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransitionArtifact(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestVisibilityWorkflow(t *testing.T) {
	if !CanTransitionVisibility(VisibilityPrivate, VisibilityPendingApproval) {
		t.Fatalf("private must be able to request approval")
	}
	if CanTransitionVisibility(VisibilityPrivate, VisibilityTeam) {
		t.Fatalf("private must not skip approval")
	}
	if !CanTransitionVisibility(VisibilityPendingApproval, VisibilityPrivate) {
		t.Fatalf("rejection must return to private")
	}
}

func TestNormalizePriority(t *testing.T) {
	for in, want := range map[int]int{0: DefaultPriority, -4: MinPriority, 1: 1, 7: 7, 42: MaxPriority} {
		if got := NormalizePriority(in); got != want {
			t.Fatalf("NormalizePriority(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSourcePathsShareArtifactPrefix(t *testing.T) {
	prefix := ArtifactPrefix("acme", "a1")
	for _, p := range []string{SourcePath("acme", "a1"), ProcessedTextPath("acme", "a1"), InsightPath("acme", "a1", "i1")} {
		if len(p) <= len(prefix) || p[:len(prefix)] != prefix {
			t.Fatalf("%q is not under %q", p, prefix)
		}
	}
}
