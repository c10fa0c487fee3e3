package cost

import (
	"testing"

	"github.com/alephnode/ccn/pkg/database"
)

func TestStaticScheduleQuote(t *testing.T) {
	s := StaticSchedule{BaseCost: 10, PerByteHold: 0.01, PerByteStream: 0.02}

	q := s.Quote(database.MessageTypeStore, 100)
	if q.Hold != 11 {
		t.Fatalf("expected hold 11, got %v", q.Hold)
	}
	if q.Stream != 2 {
		t.Fatalf("expected stream 2, got %v", q.Stream)
	}
	if q.Credit != 10 {
		t.Fatalf("expected credit 10, got %v", q.Credit)
	}
}
