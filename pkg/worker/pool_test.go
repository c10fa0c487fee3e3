package worker

import (
	"testing"

	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/database"
)

func TestPoolSizeDefaultsToOne(t *testing.T) {
	p := &Pool{cfg: config.WorkerSettings{PoolSize: 0}}
	if got := p.poolSize(); got != 1 {
		t.Fatalf("expected default pool size 1, got %d", got)
	}
	p.cfg.PoolSize = 4
	if got := p.poolSize(); got != 4 {
		t.Fatalf("expected configured pool size 4, got %d", got)
	}
}

func TestResourceBearingTypes(t *testing.T) {
	bearing := []database.MessageType{database.MessageTypeStore, database.MessageTypeProgram, database.MessageTypeInstance}
	for _, mt := range bearing {
		if !resourceBearingTypes[mt] {
			t.Fatalf("expected %s to be resource-bearing", mt)
		}
	}
	notBearing := []database.MessageType{database.MessageTypeAggregate, database.MessageTypePost, database.MessageTypeForget}
	for _, mt := range notBearing {
		if resourceBearingTypes[mt] {
			t.Fatalf("expected %s to not be resource-bearing", mt)
		}
	}
}
