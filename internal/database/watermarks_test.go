package database

import (
	"testing"
	"time"
)

func TestNullTimeZeroValueIsNull(t *testing.T) {
	got := nullTime(time.Time{})
	if got.Valid {
		t.Fatalf("zero time produced %+v, want NULL", got)
	}

	fetched := time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)
	got = nullTime(fetched)
	if !got.Valid || !got.Time.Equal(fetched) {
		t.Fatalf("nullTime(%s) = %+v", fetched, got)
	}
}
