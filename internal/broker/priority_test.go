package broker

import "testing"

func TestPriorityScore_HigherPriorityPopsFirst(t *testing.T) {
	low := priorityScore(0, 1)
	high := priorityScore(10, 2)
	if high >= low {
		t.Errorf("priorityScore(10, 2) = %v, want < priorityScore(0, 1) = %v", high, low)
	}
}

func TestPriorityScore_FIFOWithinSamePriority(t *testing.T) {
	first := priorityScore(5, 1)
	second := priorityScore(5, 2)
	if first >= second {
		t.Errorf("priorityScore(5, 1) = %v, want < priorityScore(5, 2) = %v (FIFO within a tier)", first, second)
	}
}
