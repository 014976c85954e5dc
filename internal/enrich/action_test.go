package enrich

import (
	"errors"
	"testing"

	"github.com/hyperjump/meishi/internal/models"
)

func reportForActions(t *testing.T) *models.MatchReport {
	t.Helper()
	incoming := []*models.IncomingContact{
		{FullName: "John Doe"},
		{FullName: "Mike Smith"},
		{FullName: "Alice Wonderland"},
	}
	return BuildReport("user@example.com", incoming, existingSet(), "")
}

func TestResolveActionsDefaultsToSkip(t *testing.T) {
	report := reportForActions(t)
	resolved, err := ResolveActions(report, map[int]models.ContactAction{0: models.ActionMerge})
	if err != nil {
		t.Fatalf("ResolveActions failed: %v", err)
	}
	want := []models.ContactAction{models.ActionMerge, models.ActionSkip, models.ActionSkip}
	for i, action := range want {
		if resolved[i] != action {
			t.Errorf("index %d: expected %s, got %s", i, action, resolved[i])
		}
	}
}

func TestResolveActionsMergeOnNoneFails(t *testing.T) {
	report := reportForActions(t)
	_, err := ResolveActions(report, map[int]models.ContactAction{2: models.ActionMerge})
	var invalid *InvalidActionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidActionError, got %v", err)
	}
	if invalid.Index != 2 {
		t.Errorf("expected offending index 2, got %d", invalid.Index)
	}
}

func TestResolveActionsMergeOnPartial(t *testing.T) {
	report := reportForActions(t)
	resolved, err := ResolveActions(report, map[int]models.ContactAction{1: models.ActionMerge})
	if err != nil {
		t.Fatalf("merge on a partial match must be valid: %v", err)
	}
	if resolved[1] != models.ActionMerge {
		t.Errorf("expected merge at index 1, got %s", resolved[1])
	}
}

func TestResolveActionsCreateAlwaysValid(t *testing.T) {
	report := reportForActions(t)
	resolved, err := ResolveActions(report, map[int]models.ContactAction{
		0: models.ActionCreate,
		2: models.ActionCreate,
	})
	if err != nil {
		t.Fatalf("ResolveActions failed: %v", err)
	}
	if resolved[0] != models.ActionCreate || resolved[2] != models.ActionCreate {
		t.Errorf("unexpected resolution: %v", resolved)
	}
}

func TestResolveActionsRejectsUnknownTag(t *testing.T) {
	report := reportForActions(t)
	if _, err := ResolveActions(report, map[int]models.ContactAction{0: "duplicate"}); err == nil {
		t.Error("expected error for unknown action tag")
	}
}

func TestResolveActionsRejectsOutOfRangeIndex(t *testing.T) {
	report := reportForActions(t)
	for _, idx := range []int{-1, 3, 99} {
		if _, err := ResolveActions(report, map[int]models.ContactAction{idx: models.ActionSkip}); err == nil {
			t.Errorf("expected error for index %d", idx)
		}
	}
}
