package main

import (
	"testing"
)

func TestAntStaysInBounds(t *testing.T) {
	a := NewAnt()
	for i := 0; i < 10000; i++ {
		a.Update(1.0 / TickRate)
		if a.X < 0 || a.X > WorldWidth || a.Y < 0 || a.Y > WorldHeight {
			t.Fatalf("ant escaped world bounds at tick %d: (%f, %f)", i, a.X, a.Y)
		}
	}
}

func TestResourceHarvest(t *testing.T) {
	r := NewResource()
	if r.Amount != ResourceAmount {
		t.Fatalf("new resource amount = %d, want %d", r.Amount, ResourceAmount)
	}

	if depleted := r.Harvest(); depleted {
		t.Error("first harvest should not deplete a full node")
	}
	if r.Amount != ResourceAmount-ResourceHarvestRate {
		t.Errorf("amount after one harvest = %d, want %d", r.Amount, ResourceAmount-ResourceHarvestRate)
	}

	// Drain the rest
	depleted := false
	for i := 0; i < ResourceAmount/ResourceHarvestRate; i++ {
		depleted = r.Harvest()
	}
	if !depleted {
		t.Error("final harvest should report depletion")
	}
	if r.Amount != 0 {
		t.Errorf("depleted amount = %d, want 0", r.Amount)
	}
	if r.Harvest() {
		t.Error("harvesting an empty node should be a no-op")
	}
}

func TestResourceRespawn(t *testing.T) {
	r := NewResource()
	for r.Amount > 0 {
		r.Harvest()
	}
	oldX, oldY := r.X, r.Y

	// Not yet: delay has not elapsed
	if r.TickRespawn(1.0) {
		t.Error("respawned before delay elapsed")
	}
	if r.TickRespawn(1.0) {
		t.Error("respawned before delay elapsed")
	}

	if !r.TickRespawn(1.5) {
		t.Fatal("expected respawn after delay elapsed")
	}
	if r.Amount != ResourceAmount {
		t.Errorf("respawned amount = %d, want %d", r.Amount, ResourceAmount)
	}
	if r.X == oldX && r.Y == oldY {
		t.Log("resource respawned at the same spot (possible but unlikely)")
	}

	// A full node never ticks
	if r.TickRespawn(10) {
		t.Error("full node should not respawn")
	}
}

func TestEntityTypes(t *testing.T) {
	if got := NewAnt().EntityType(); got != TypeAnt {
		t.Errorf("ant type = %q, want %q", got, TypeAnt)
	}
	if got := NewResource().EntityType(); got != TypeResource {
		t.Errorf("resource type = %q, want %q", got, TypeResource)
	}
	if got := NewBuilding("nest", 0, 0).EntityType(); got != TypeBuilding {
		t.Errorf("building type = %q, want %q", got, TypeBuilding)
	}
}
