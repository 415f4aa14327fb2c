package reconstruct

import (
	"reflect"
	"testing"
)

func deltasWithSeqs(seqs ...int64) []Delta {
	out := make([]Delta, len(seqs))
	for i, s := range seqs {
		out[i] = Delta{Seq: s}
	}
	return out
}

func TestDetectGaps(t *testing.T) {
	cases := []struct {
		name string
		seqs []int64
		want []Gap
	}{
		{"empty", nil, nil},
		{"single", []int64{7}, nil},
		{"consecutive", []int64{1, 2, 3, 4}, nil},
		{"one gap", []int64{1, 2, 5, 6}, []Gap{{After: 2, Before: 5}}},
		{"two gaps", []int64{1, 3, 4, 9}, []Gap{{After: 1, Before: 3}, {After: 4, Before: 9}}},
		{"gap at start pair", []int64{10, 20}, []Gap{{After: 10, Before: 20}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectGaps(deltasWithSeqs(tc.seqs...))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("DetectGaps(%v) = %v, want %v", tc.seqs, got, tc.want)
			}
		})
	}
}
