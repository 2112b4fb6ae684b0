package catalog

import (
	"reflect"
	"testing"
	"time"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single quoted", "['Dua Lipa']", []string{"Dua Lipa"}},
		{"several single quoted", "['Dua Lipa', 'DaBaby']", []string{"Dua Lipa", "DaBaby"}},
		{"double quoted wins", `["Guns N' Roses", 'Slash']`, []string{"Guns N' Roses"}},
		{"apostrophe inside double quotes", `["Guns N' Roses"]`, []string{"Guns N' Roses"}},
		{"genre tag with apostrophe", `["children's music"]`, []string{"children's music"}},
		{"empty list", "[]", []string{}},
		{"empty names dropped", "['', 'Björk']", []string{"Björk"}},
		{"whitespace collapsed", "['  Sonic   Youth ']", []string{"Sonic Youth"}},
		{"garbage", "not a list", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseList(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseList(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCleanString_NFC(t *testing.T) {
	decomposed := "Bjo\u0308rk"
	composed := "Bj\u00f6rk"
	if got := CleanString(decomposed); got != composed {
		t.Errorf("CleanString(%q) = %q, want %q", decomposed, got, composed)
	}
}

func TestParseReleaseDate(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		wantErr bool
	}{
		{"1999", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"1999-07", time.Date(1999, 7, 1, 0, 0, 0, 0, time.UTC), false},
		{"1999-07-14", time.Date(1999, 7, 14, 0, 0, 0, 0, time.UTC), false},
		{" 2020-02-29 ", time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"14/07/1999", time.Time{}, true},
		{"2021-13-01", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := ParseReleaseDate(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseReleaseDate(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseReleaseDate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParsePopularity(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"57", 57, false},
		{"100", 100, false},
		{"42.0", 42, false},
		{"42.5", 0, true},
		{"-1", 0, true},
		{"101", 0, true},
		{"popular", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePopularity(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePopularity(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePopularity(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
