package execctx

import (
	"context"
	"reflect"
	"testing"
)

func TestInstallExtract_RoundTrip(t *testing.T) {
	ec := ExecutionContext{RequestID: "req-1", UserName: "alice", HopCount: 2}
	ctx := Install(context.Background(), ec)

	got, ok := Extract(ctx)
	if !ok {
		t.Fatal("expected an ExecutionContext to be present")
	}
	if !reflect.DeepEqual(got, ec) {
		t.Fatalf("expected %+v, got %+v", ec, got)
	}
}

func TestExtract_AbsentOnPlainContext(t *testing.T) {
	_, ok := Extract(context.Background())
	if ok {
		t.Fatal("expected no ExecutionContext on a plain context")
	}
}

func TestFromContextOrEmpty_ZeroValueWhenAbsent(t *testing.T) {
	ec := FromContextOrEmpty(context.Background())
	if !reflect.DeepEqual(ec, ExecutionContext{}) {
		t.Fatalf("expected zero value, got %+v", ec)
	}
}

func TestHopCount_DefaultsToZero(t *testing.T) {
	if HopCount(context.Background()) != 0 {
		t.Fatal("expected hop count 0 on a context with no ExecutionContext installed")
	}
}

func TestWithHopCount_PreservesOtherFields(t *testing.T) {
	ctx := Install(context.Background(), ExecutionContext{UserName: "bob"})
	ctx = WithHopCount(ctx, 5)

	ec := FromContextOrEmpty(ctx)
	if ec.HopCount != 5 {
		t.Fatalf("expected HopCount 5, got %d", ec.HopCount)
	}
	if ec.UserName != "bob" {
		t.Fatalf("expected UserName preserved, got %q", ec.UserName)
	}
}

func TestMarkStreamConsumer_RoundTrip(t *testing.T) {
	if IsStreamConsumer(context.Background()) {
		t.Fatal("expected false for a plain context")
	}
	ctx := MarkStreamConsumer(context.Background())
	if !IsStreamConsumer(ctx) {
		t.Fatal("expected true after MarkStreamConsumer")
	}
}

func TestClone_DeepCopiesAuthorities(t *testing.T) {
	original := ExecutionContext{Authorities: []string{"admin"}}
	clone := original.Clone()
	clone.Authorities[0] = "mutated"

	if original.Authorities[0] != "admin" {
		t.Fatalf("expected original Authorities unaffected by mutating the clone, got %v", original.Authorities)
	}
}
