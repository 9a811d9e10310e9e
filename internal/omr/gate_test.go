package omr

import (
	"math"
	"reflect"
	"testing"
)

func TestReady(t *testing.T) {
	corners := []int{1, 5, 9, 10}
	tests := []struct {
		name        string
		detected    []int
		wantReady   bool
		wantMissing []int
	}{
		{"all corners plus interior", []int{1, 5, 9, 10, 7}, true, nil},
		{"exact corners unordered", []int{10, 9, 5, 1}, true, nil},
		{"missing one", []int{1, 5, 9}, false, []int{10}},
		{"only interior", []int{2, 3, 4}, false, []int{1, 5, 9, 10}},
		{"nothing", nil, false, []int{1, 5, 9, 10}},
		{"duplicates", []int{1, 1, 5, 9, 10}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ready(tt.detected, corners); got != tt.wantReady {
				t.Errorf("Ready = %v, want %v", got, tt.wantReady)
			}
			if got := MissingIDs(tt.detected, corners); !reflect.DeepEqual(got, tt.wantMissing) {
				t.Errorf("MissingIDs = %v, want %v", got, tt.wantMissing)
			}
		})
	}
}

func TestOrientation_Normalize(t *testing.T) {
	p := NormPoint{X: 0.2, Y: 0.7}
	tests := []struct {
		o    Orientation
		want NormPoint
	}{
		{Normal, NormPoint{0.2, 0.7}},
		{Rotate90, NormPoint{0.3, 0.2}},
		{Rotate180, NormPoint{0.8, 0.3}},
		{Rotate270, NormPoint{0.7, 0.8}},
	}

	for _, tt := range tests {
		t.Run(tt.o.String(), func(t *testing.T) {
			got := tt.o.Normalize(p)
			if !near(got, tt.want) {
				t.Errorf("Normalize(%v) = %v, want %v", p, got, tt.want)
			}
		})
	}
}

func TestOrientation_Compose(t *testing.T) {
	points := []NormPoint{{0, 0}, {1, 1}, {0.25, 0.75}, {0.5, 0.5}, {0.9, 0.1}}

	for _, p := range points {
		if got := Rotate180.Normalize(Rotate180.Normalize(p)); !near(got, p) {
			t.Errorf("180 twice: %v -> %v", p, got)
		}

		q := p
		for i := 0; i < 4; i++ {
			q = Rotate90.Normalize(q)
		}
		if !near(q, p) {
			t.Errorf("90 four times: %v -> %v", p, q)
		}

		if got := Rotate270.Normalize(Rotate90.Normalize(p)); !near(got, p) {
			t.Errorf("90 then 270: %v -> %v", p, got)
		}
	}
}

func TestParseOrientation(t *testing.T) {
	tests := []struct {
		in      string
		want    Orientation
		wantErr bool
	}{
		{"", Normal, false},
		{"normal", Normal, false},
		{"90", Rotate90, false},
		{"Rotate180", Rotate180, false},
		{" rotate270 ", Rotate270, false},
		{"sideways", Normal, true},
	}

	for _, tt := range tests {
		got, err := ParseOrientation(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOrientation(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOrientation(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOrientationFromEXIF(t *testing.T) {
	want := map[int]Orientation{0: Normal, 1: Normal, 3: Rotate180, 6: Rotate90, 8: Rotate270, 2: Normal}
	for tag, o := range want {
		if got := OrientationFromEXIF(tag); got != o {
			t.Errorf("OrientationFromEXIF(%d) = %v, want %v", tag, got, o)
		}
	}
}

func TestJoinDigits(t *testing.T) {
	if got := JoinDigits([]int{0, 4, 2}); got != "042" {
		t.Errorf("JoinDigits = %q, want 042", got)
	}
	if got := JoinDigits([]int{}); got != "" {
		t.Errorf("JoinDigits(empty) = %q, want empty", got)
	}
}

func near(a, b NormPoint) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}
