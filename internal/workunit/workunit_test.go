package workunit

import (
	"context"
	"errors"
	"testing"
)

func TestParentFromEmptyByDefault(t *testing.T) {
	if got := ParentFrom(context.Background()); got != "" {
		t.Fatalf("ParentFrom(background) = %q, want empty", got)
	}
}

func TestStartInheritsParentAndLinksChild(t *testing.T) {
	s := New(nil, "")

	root, ctx := s.Start(context.Background(), "root", "root desc", true)
	if root.ParentID != "" {
		t.Fatalf("root.ParentID = %q, want empty", root.ParentID)
	}
	if ParentFrom(ctx) != root.SpanID {
		t.Fatalf("ParentFrom(ctx after Start) = %q, want %q", ParentFrom(ctx), root.SpanID)
	}

	child, childCtx := s.Start(ctx, "child", "child desc", false)
	if child.ParentID != root.SpanID {
		t.Fatalf("child.ParentID = %q, want %q", child.ParentID, root.SpanID)
	}
	if ParentFrom(childCtx) != child.SpanID {
		t.Fatalf("ParentFrom(childCtx) = %q, want %q", ParentFrom(childCtx), child.SpanID)
	}
	if root.SpanID == child.SpanID {
		t.Fatal("root and child were assigned the same span id")
	}
}

func TestCompleteIsExactlyOnce(t *testing.T) {
	s := New(nil, "")
	wu, _ := s.Start(context.Background(), "n", "d", false)

	s.Complete(wu, nil)
	firstEnd := wu.End
	if !wu.completed {
		t.Fatal("expected Complete to mark the workunit completed")
	}

	s.Complete(wu, errors.New("should be ignored"))
	if wu.Err != nil {
		t.Fatalf("second Complete call overwrote Err: %v", wu.Err)
	}
	if wu.End != firstEnd {
		t.Fatal("second Complete call overwrote End: exactly-once semantics violated")
	}
}

func TestCompleteRemovesFromPending(t *testing.T) {
	s := New(nil, "")
	wu, _ := s.Start(context.Background(), "n", "d", false)

	s.mu.Lock()
	_, stillPending := s.pending[wu.SpanID]
	s.mu.Unlock()
	if !stillPending {
		t.Fatal("expected the workunit to be pending before Complete")
	}

	s.Complete(wu, nil)

	s.mu.Lock()
	_, stillPending = s.pending[wu.SpanID]
	s.mu.Unlock()
	if stillPending {
		t.Fatal("expected Complete to remove the workunit from pending")
	}
}

func TestCompleteRecordsErrStatus(t *testing.T) {
	s := New(nil, "")
	wu, _ := s.Start(context.Background(), "n", "d", false)
	err := errors.New("boom")
	s.Complete(wu, err)
	if wu.Err != err {
		t.Fatalf("wu.Err = %v, want %v", wu.Err, err)
	}
}

type namedNode struct{ name string }

func (n namedNode) UserFacingName() string { return n.name }

func TestUserFacingName(t *testing.T) {
	if got := UserFacingName(namedNode{name: "my_rule"}); got != "my_rule" {
		t.Fatalf("UserFacingName = %q, want my_rule", got)
	}
	if got := UserFacingName(namedNode{}); got != "" {
		t.Fatalf("UserFacingName = %q, want empty", got)
	}
}
