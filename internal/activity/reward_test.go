package activity

import "testing"

func TestShapeReward_FailureAlwaysZero(t *testing.T) {
	if got := ShapeReward(false, "anything at all, even long structured: output 123"); got != 0 {
		t.Errorf("expected 0 for failure, got %v", got)
	}
}

func TestShapeReward_BaseSuccess(t *testing.T) {
	got := ShapeReward(true, "ok")
	if got != 0.3 {
		t.Errorf("expected base 0.3, got %v", got)
	}
}

func TestShapeReward_AllBonusesStack(t *testing.T) {
	// >50 chars, contains ':' and a digit, no error/unavailable substrings.
	output := "filesystem: /dev/sda1 has 128GB free and 12 inodes available here"
	got := ShapeReward(true, output)
	if got != 0.9 {
		t.Errorf("expected 0.3+0.2+0.2+0.2=0.9, got %v", got)
	}
}

func TestShapeReward_ErrorSubstringPenalty(t *testing.T) {
	got := ShapeReward(true, "error")
	if got != 0.2 {
		t.Errorf("expected 0.3-0.1=0.2, got %v", got)
	}
}

func TestShapeReward_ClampedToOne(t *testing.T) {
	output := "memory: 87% used | disk: 45% used | cpu: 12% used | network: 3 connections open right now"
	got := ShapeReward(true, output)
	if got > 1 || got < 0 {
		t.Errorf("reward out of bounds: %v", got)
	}
}
