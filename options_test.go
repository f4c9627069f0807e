package scheduler

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestOptionsValidateRejectsUsedCapacityWithoutMaxCapacity(t *testing.T) {
	o := Options{InitiallyUsedCapacity: 1}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestOptionsValidateRejectsReleaseRulesWithoutMaxCapacity(t *testing.T) {
	o := Options{ReleaseRules: []*ReleaseRule{{Kind: ReleaseReset, Interval: time.Minute}}}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestOptionsValidateRejectsOutOfBoundsInitialCapacity(t *testing.T) {
	max := 10.0
	o := Options{MaxCapacity: &max, InitiallyUsedCapacity: 20}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestOptionsValidateRejectsBadReleaseRule(t *testing.T) {
	max := 10.0
	o := Options{MaxCapacity: &max, ReleaseRules: []*ReleaseRule{{Kind: ReleaseReduce, Value: 0, Interval: time.Minute}}}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for non-positive reduce value")
	}
}

func TestOptionsValidateAcceptsWellFormedConfiguration(t *testing.T) {
	max := 10.0
	o := Options{
		MaxCapacity:           &max,
		InitiallyUsedCapacity: 5,
		ReleaseRules:          []*ReleaseRule{{Kind: ReleaseReset, Value: 0, Interval: time.Minute}},
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOptionsCloneIsDeepAndIndependent(t *testing.T) {
	max := 10.0
	rule := &ReleaseRule{Kind: ReleaseReset, Interval: time.Minute}
	o := &Options{MaxCapacity: &max, ReleaseRules: []*ReleaseRule{rule}}

	clone := o.clone()
	// ReleaseRule.id is an internal identity assigned by assignRuleIDs,
	// not part of the caller-visible configuration this test compares.
	if diff := cmp.Diff(o, clone, cmpopts.IgnoreUnexported(ReleaseRule{})); diff != "" {
		t.Fatalf("clone diverged from source (-want +got):\n%s", diff)
	}

	*clone.MaxCapacity = 999
	clone.ReleaseRules[0].Value = 42
	if *o.MaxCapacity == 999 {
		t.Fatal("clone must not alias the original MaxCapacity pointer")
	}
	if o.ReleaseRules[0].Value == 42 {
		t.Fatal("clone must not alias the original ReleaseRule pointers")
	}
}

func TestValidPriorityRange(t *testing.T) {
	for p := 0; p <= 9; p++ {
		if !validPriority(p) {
			t.Fatalf("priority %d should be valid", p)
		}
	}
	if validPriority(-1) || validPriority(10) {
		t.Fatal("priorities outside [0,9] must be rejected")
	}
}
