package gpucore

import (
	"slices"
	"testing"
)

func TestSharedFamilies(t *testing.T) {
	tests := []struct {
		in   []uint32
		want []uint32
	}{
		{nil, nil},
		{[]uint32{0}, nil},
		{[]uint32{1, 1}, nil},
		{[]uint32{1, 0}, []uint32{0, 1}},
		{[]uint32{2, 0, 2}, []uint32{0, 2}},
	}
	for _, tt := range tests {
		in := slices.Clone(tt.in)
		if got := SharedFamilies(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("SharedFamilies(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if !slices.Equal(in, tt.in) {
			t.Errorf("SharedFamilies modified its input: %v", tt.in)
		}
	}
}
