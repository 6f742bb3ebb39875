package internal

import (
	"errors"
	"testing"
	"time"
)

func TestMatchFilename(t *testing.T) {
	rome, _ := time.LoadLocation("Europe/Rome")
	testCases := []struct {
		name        string
		ok          bool
		want        time.Time
		granularity Granularity
		source      MessagingSource
	}{
		{"IMG-20230615-WA0003.jpg", true, time.Date(2023, 6, 15, 0, 0, 0, 0, rome), GranularityDate, SourceWhatsApp},
		{"VID-20221231-WA0001.mp4", true, time.Date(2022, 12, 31, 0, 0, 0, 0, rome), GranularityDate, SourceWhatsApp},
		{"IMG_20230615_143022_001.jpg", true, time.Date(2023, 6, 15, 14, 30, 22, 0, rome), GranularitySecond, SourceTelegram},
		{"VID_20230101_000001_9.mp4", true, time.Date(2023, 1, 1, 0, 0, 1, 0, rome), GranularitySecond, SourceTelegram},
		{"DSC_0001.jpg", false, time.Time{}, "", ""},
		{"IMG-2023061-WA0003.jpg", false, time.Time{}, "", ""},
		{"img-20230615-wa0003.jpg", false, time.Time{}, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ft, ok, err := MatchFilename(tc.name, rome, FilenamePatterns)
			if err != nil {
				t.Fatalf("MatchFilename failed: %v", err)
			}
			if ok != tc.ok {
				t.Fatalf("Expected ok=%v, got %v", tc.ok, ok)
			}
			if !ok {
				return
			}
			if !ft.Time.Equal(tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, ft.Time)
			}
			if ft.Pattern.Granularity != tc.granularity || ft.Pattern.Source != tc.source {
				t.Errorf("Unexpected pattern %+v", ft.Pattern)
			}
		})
	}
}

func TestMatchFilename_ImpossibleDate(t *testing.T) {
	_, ok, err := MatchFilename("IMG-20231345-WA0003.jpg", time.UTC, FilenamePatterns)
	if !ok || !errors.Is(err, ErrMalformedMetadata) {
		t.Errorf("Expected malformed metadata for impossible date, got ok=%v err=%v", ok, err)
	}
}

func TestLookupPattern(t *testing.T) {
	p, err := LookupPattern(SourceTelegram, KindVideo)
	if err != nil {
		t.Fatalf("LookupPattern failed: %v", err)
	}
	if !p.Expr.MatchString("VID_20230615_143022_001.mp4") || p.Expr.MatchString("IMG_20230615_143022_001.jpg") {
		t.Errorf("Unexpected pattern %s", p.Expr)
	}

	for _, bad := range []struct {
		source MessagingSource
		media  MediaKind
	}{
		{"signal", KindImage},
		{SourceWhatsApp, KindOther},
	} {
		if _, err := LookupPattern(bad.source, bad.media); !errors.Is(err, ErrConfiguration) {
			t.Errorf("LookupPattern(%s, %s): expected configuration error, got %v", bad.source, bad.media, err)
		}
	}
}

func TestSameAt(t *testing.T) {
	rome, _ := time.LoadLocation("Europe/Rome")
	day := time.Date(2023, 6, 15, 0, 0, 0, 0, rome)
	late := time.Date(2023, 6, 15, 23, 30, 0, 0, rome)

	if !SameAt(day, late, GranularityDate, rome) {
		t.Error("Expected same calendar day in Rome")
	}
	// 23:30 in Rome is still the 15th there but already the 16th in Tokyo.
	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	if SameAt(day, late, GranularityDate, tokyo) {
		t.Error("Expected different days in Tokyo")
	}
	if SameAt(day, late, GranularitySecond, rome) {
		t.Error("Expected second granularity to tell them apart")
	}
	if !SameAt(late, late.UTC(), GranularitySecond, rome) {
		t.Error("Expected equal instants to match regardless of zone")
	}
}
