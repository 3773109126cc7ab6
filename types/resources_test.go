package types_test

import (
	"testing"

	"github.com/xraph/credits/types"
)

func TestUnitValid(t *testing.T) {
	tests := []struct {
		unit types.Unit
		want bool
	}{
		{"image", true},
		{"gpu.seconds", true},
		{"frame_4k", true},
		{"", false},
		{"Image", false},
		{"with space", false},
		{"ünïcode", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			if got := tt.unit.Valid(); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.unit, got, tt.want)
			}
		})
	}
}

func TestResourcesTotalAndUnits(t *testing.T) {
	r := types.Resources{"image": 500, "frame": 100, "zero": 0}

	if got := r.Total(); got != 600 {
		t.Errorf("Total = %d, want 600", got)
	}

	units := r.Units()
	if len(units) != 2 || units[0] != "frame" || units[1] != "image" {
		t.Errorf("Units = %v, want [frame image]", units)
	}
}

func TestResourcesNormalizeDropsUnknown(t *testing.T) {
	allowed := types.NewUnitSet("image", "frame")
	r := types.Resources{"image": 5, "frame": 0, "video": 9, "BAD": 3}

	got := r.Normalize(allowed)
	if len(got) != 1 || got["image"] != 5 {
		t.Errorf("Normalize = %v, want map[image:5]", got)
	}

	open := r.Normalize(nil)
	if len(open) != 2 || open["video"] != 9 {
		t.Errorf("Normalize(nil) = %v, want image and video", open)
	}
}

func TestResourcesValidate(t *testing.T) {
	if err := (types.Resources{"image": 1, "frame": 0}).Validate(nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (types.Resources{"image": -1}).Validate(nil); err == nil {
		t.Error("expected error for negative amount")
	}
	if err := (types.Resources{"video": 1}).Validate(types.NewUnitSet("image")); err == nil {
		t.Error("expected error for disallowed unit")
	}
}

func TestResourcesAdd(t *testing.T) {
	var acc types.Resources
	acc = acc.Add(types.Resources{"image": 2})
	acc = acc.Add(types.Resources{"image": 3, "frame": 1})

	if acc["image"] != 5 || acc["frame"] != 1 {
		t.Errorf("Add = %v", acc)
	}
}

func TestResourcesValueScan(t *testing.T) {
	original := types.Resources{"image": 7}
	v, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned types.Resources
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned["image"] != 7 {
		t.Errorf("Scan = %v", scanned)
	}

	if err := scanned.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if scanned != nil {
		t.Errorf("expected nil after Scan(nil), got %v", scanned)
	}
}
