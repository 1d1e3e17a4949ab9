package config

import (
	"reflect"
	"testing"
)

func TestNormalizeBBoxArgs(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "negative values",
			in:   []string{"--bbox", "-118.068", "34.222", "-118.058", "34.228", "-o", "out"},
			want: []string{"--bbox=-118.068,34.222,-118.058,34.228", "-o", "out"},
		},
		{
			name: "quoted single value",
			in:   []string{"--bbox", "-118.068 34.222 -118.058 34.228", "--out_dir", "out"},
			want: []string{"--bbox=-118.068,34.222,-118.058,34.228", "--out_dir", "out"},
		},
		{
			name: "too few values stops at next flag",
			in:   []string{"--bbox", "1", "2", "--out_dir", "out"},
			want: []string{"--bbox=1,2", "--out_dir", "out"},
		},
		{
			name: "equals form untouched",
			in:   []string{"--bbox=1,2,3,4"},
			want: []string{"--bbox=1,2,3,4"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeBBoxArgs(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("NormalizeBBoxArgs(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
