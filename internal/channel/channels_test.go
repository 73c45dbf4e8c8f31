package channel

import (
	"testing"

	"stratflow/logger"
	"stratflow/models"
)

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus(2, "BTCUSDT", models.ModeBacktest, logger.Logger())

	if !b.Publish(models.DashboardUpdate{Price: 1}) {
		t.Fatal("publish into an empty bus must succeed")
	}
	if !b.Publish(models.DashboardUpdate{Price: 2}) {
		t.Fatal("publish within the buffer must succeed")
	}
	if b.Publish(models.DashboardUpdate{Price: 3}) {
		t.Fatal("publish into a full bus must drop, not block")
	}

	stats := b.GetStats()
	if stats.Sent != 2 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v, want 2 sent / 1 dropped", stats)
	}
}

func TestDrainAndClose(t *testing.T) {
	b := NewBus(2, "BTCUSDT", models.ModePaper, logger.Logger())
	b.Publish(models.DashboardUpdate{Price: 1})
	b.Publish(models.DashboardUpdate{Price: 2})
	b.Close()

	if got := <-b.Updates; got.Price != 1 {
		t.Fatalf("first drained update price = %v, want 1", got.Price)
	}
	if got := <-b.Updates; got.Price != 2 {
		t.Fatalf("second drained update price = %v, want 2", got.Price)
	}
	if _, ok := <-b.Updates; ok {
		t.Fatal("a drained closed bus must report closed")
	}
}
