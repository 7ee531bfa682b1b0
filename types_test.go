// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asn1kit

import (
	"testing"
	"time"
)

func TestFormatGeneralizedTime(t *testing.T) {
	tests := map[string]struct {
		t    time.Time
		want string
	}{
		"Example":       {time.Date(1985, 11, 06, 21, 06, 27, 300000000, time.Local), "19851106210627.3"},
		"ExampleUTC":    {time.Date(1985, 11, 06, 21, 06, 27, 300000000, time.UTC), "19851106210627.3Z"},
		"Fractional":    {time.Date(1985, 11, 06, 21, 06, 27, 30000000, time.UTC), "19851106210627.03Z"},
		"ExampleOffset": {time.Date(1985, 11, 06, 21, 06, 27, 300000000, time.FixedZone("", -5*3600)), "19851106210627.3-0500"},
		"Example2":      {time.Date(1985, 11, 06, 21, 06, 00, 456000000, time.Local), "19851106210600.456"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatGeneralizedTime(tt.t); got != tt.want {
				t.Errorf("FormatGeneralizedTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatUTCTime(t *testing.T) {
	tests := map[string]struct {
		t    time.Time
		want string
	}{
		"EarlyUTC":       {time.Date(1962, 7, 23, 16, 12, 3, 0, time.UTC), "620723161203Z"},
		"LateUTC":        {time.Date(2048, 7, 23, 8, 12, 0, 0, time.UTC), "480723081200Z"},
		"PositiveOffset": {time.Date(2048, 7, 23, 23, 12, 0, 0, time.FixedZone("", 3*60*60)), "480723231200+0300"},
		"NegativeOffset": {time.Date(2048, 7, 23, 2, 12, 0, 0, time.FixedZone("", -(5*60+30)*60)), "480723021200-0530"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatUTCTime(tt.t); got != tt.want {
				t.Errorf("FormatUTCTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDate(t *testing.T) {
	tests := map[string]struct {
		t    time.Time
		want string
	}{
		"Simple":    {time.Date(6352, 4, 23, 0, 0, 0, 0, time.UTC), "6352-04-23"},
		"LocalTime": {time.Date(6352, 4, 23, 0, 0, 0, 0, time.Local), "6352-04-23"},
		"WithTime":  {time.Date(6352, 4, 23, 18, 2, 4, 62, time.Local), "6352-04-23"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatDate(tt.t); got != tt.want {
				t.Errorf("FormatDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatTimeOfDay(t *testing.T) {
	tests := map[string]struct {
		t    time.Time
		want string
	}{
		"Simple":         {time.Date(0, 0, 0, 15, 12, 8, 0, time.Local), "15:12:08"},
		"IgnoreDate":     {time.Date(1985, 12, 5, 15, 12, 8, 0, time.Local), "15:12:08"},
		"IgnoreLocation": {time.Date(1985, 12, 5, 15, 12, 8, 0, time.UTC), "15:12:08"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatTimeOfDay(tt.t); got != tt.want {
				t.Errorf("FormatTimeOfDay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDateTime(t *testing.T) {
	tests := map[string]struct {
		t    time.Time
		want string
	}{
		"Simple":         {time.Date(1985, 12, 5, 15, 12, 8, 0, time.Local), "1985-12-05T15:12:08"},
		"IgnoreTimeZone": {time.Date(1985, 12, 5, 15, 12, 8, 0, time.UTC), "1985-12-05T15:12:08"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatDateTime(tt.t); got != tt.want {
				t.Errorf("FormatDateTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		d    time.Duration
		want string
	}{
		"Zero":       {0, "PT0S"},
		"Hour":       {time.Hour, "PT1H"},
		"Minute":     {time.Minute, "PT1M"},
		"Second":     {time.Second, "PT1S"},
		"Mixed":      {2*time.Hour + 23*time.Minute + 15*time.Second, "PT2H23M15S"},
		"Fractional": {15*time.Second + 13*time.Millisecond, "PT15.013S"},
		"Negative":   {-2*time.Hour - 15*time.Minute - 4*time.Second, "-PT2H15M4S"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatDuration(tt.d); got != tt.want {
				t.Errorf("FormatDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseASN1Time(t *testing.T) {
	tests := map[string]struct {
		s        string
		want     time.Duration
		wantOK   bool
		wantZone string
	}{
		"UTCZulu":     {"210621Z", 21*time.Hour + 6*time.Minute + 21*time.Second, true, "UTC"},
		"Offset":      {"210621+0530", 21*time.Hour + 6*time.Minute + 21*time.Second, true, ""},
		"Fractional":  {"210621.5Z", 21*time.Hour + 6*time.Minute + 21*time.Second + 500*time.Millisecond, true, "UTC"},
		"Extended":    {"21:06:21Z", 21*time.Hour + 6*time.Minute + 21*time.Second, true, "UTC"},
		"Invalid":     {"2a0621Z", 0, false, ""},
		"BadFraction": {"210621.Z", 0, false, ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, loc, _, ok := ParseASN1Time(tt.s)
			if ok != tt.wantOK {
				t.Fatalf("ParseASN1Time() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("ParseASN1Time() = %v, want %v", got, tt.want)
			}
			if tt.wantZone != "" && loc.String() != tt.wantZone {
				t.Errorf("ParseASN1Time() zone = %v, want %v", loc, tt.wantZone)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("6352-04-23")
	if !ok {
		t.Fatal("ParseDate() ok = false, want true")
	}
	want := time.Date(6352, 4, 23, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("ParseDate() = %v, want %v", got, want)
	}
	if _, ok := ParseDate("not-a-date"); ok {
		t.Error("ParseDate() ok = true for invalid input")
	}
}

func TestValidators(t *testing.T) {
	if !ValidNumericString("012 345") {
		t.Error("ValidNumericString rejected valid input")
	}
	if ValidNumericString("12a") {
		t.Error("ValidNumericString accepted invalid input")
	}
	if !ValidPrintableString("Test User 1") {
		t.Error("ValidPrintableString rejected valid input")
	}
	if ValidPrintableString("Test*") {
		t.Error("ValidPrintableString accepted invalid input")
	}
	if !ValidIA5String("hello@example.com") {
		t.Error("ValidIA5String rejected valid input")
	}
	if ValidIA5String("héllo") {
		t.Error("ValidIA5String accepted non-ASCII input")
	}
	if !ValidVisibleString("Hello, World!") {
		t.Error("ValidVisibleString rejected valid input")
	}
	if ValidVisibleString("tab\ttab") {
		t.Error("ValidVisibleString accepted control character")
	}
	if !ValidBMPString("hello") {
		t.Error("ValidBMPString rejected valid input")
	}
}

func TestItoaN(t *testing.T) {
	tests := map[string]struct {
		i    int
		n    int
		want string
	}{
		"2-digit":     {23, 2, "23"},
		"2-digit-pad": {7, 2, "07"},
		"4-digit":     {1023, 4, "1023"},
		"4-digit-pad": {18, 4, "0018"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := itoaN(tt.i, tt.n); got != tt.want {
				t.Errorf("itoaN() = %v, want %v", got, tt.want)
			}
		})
	}
}
