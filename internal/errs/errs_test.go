package errs

import (
	"errors"
	"testing"
)

func TestWrapIsMatchesKind(t *testing.T) {
	err := Wrap(UnknownTool, errors.New("no such tool: frobnicate"))

	if !errors.Is(err, UnknownTool) {
		t.Error("expected errors.Is to match the wrapped Kind")
	}
	if errors.Is(err, InvalidArgs) {
		t.Error("expected errors.Is not to match an unrelated Kind")
	}
}

func TestOfExtractsKind(t *testing.T) {
	err := Wrap(Timeout, errors.New("deadline exceeded"))

	kind, ok := Of(err)
	if !ok || kind != Timeout {
		t.Errorf("expected Of to return Timeout, got %v (ok=%v)", kind, ok)
	}
}

func TestOfOnBareKind(t *testing.T) {
	kind, ok := Of(CycleDetected)
	if !ok || kind != CycleDetected {
		t.Errorf("expected Of to recognise a bare Kind, got %v (ok=%v)", kind, ok)
	}
}
