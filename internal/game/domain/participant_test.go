package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestParticipantListAddOrderAndSequence(t *testing.T) {
	list := NewParticipantList()

	for i, id := range []string{"alice", "bob", "carol"} {
		p, err := list.Add(id)
		if err != nil {
			t.Fatalf("Add(%q) error = %v", id, err)
		}
		if p.Sequence != i+1 {
			t.Errorf("Add(%q) sequence = %d, want %d", id, p.Sequence, i+1)
		}
		if p.SwapLink != id {
			t.Errorf("Add(%q) swap link = %q, want self-loop", id, p.SwapLink)
		}
	}

	want := []string{"alice", "bob", "carol"}
	if got := list.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}

func TestParticipantListAddErrors(t *testing.T) {
	list := NewParticipantList()

	if _, err := list.Add(""); !errors.Is(err, ErrEmptyParticipantID) {
		t.Errorf("Add(empty) error = %v, want %v", err, ErrEmptyParticipantID)
	}
	if _, err := list.Add("   "); !errors.Is(err, ErrEmptyParticipantID) {
		t.Errorf("Add(blank) error = %v, want %v", err, ErrEmptyParticipantID)
	}

	if _, err := list.Add("alice"); err != nil {
		t.Fatalf("Add(alice) error = %v", err)
	}
	if _, err := list.Add("alice"); !errors.Is(err, ErrParticipantExists) {
		t.Errorf("duplicate Add error = %v, want %v", err, ErrParticipantExists)
	}
}

func TestParticipantListGet(t *testing.T) {
	list := NewParticipantList()
	if _, err := list.Add("alice"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	p, err := list.Get("alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	p.Coordinate = "C3"

	again, err := list.Get("alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Coordinate != "C3" {
		t.Errorf("Get() returned a copy, coordinate = %q", again.Coordinate)
	}

	if _, err := list.Get("nobody"); !errors.Is(err, ErrParticipantNotFound) {
		t.Errorf("Get(unknown) error = %v, want %v", err, ErrParticipantNotFound)
	}
	if list.Has("nobody") {
		t.Error("Has(unknown) = true")
	}
}

func TestRestorePreservesSequenceAndOrder(t *testing.T) {
	list := NewParticipantList()

	records := []*Participant{
		{ID: "alice", Sequence: 1, Coordinate: "C3"},
		{ID: "bob", Sequence: 2, Coordinate: "A1", Forfeited: true},
		{ID: "carol", Sequence: 5, Coordinate: "B4"},
	}
	for _, rec := range records {
		if err := list.Restore(rec); err != nil {
			t.Fatalf("Restore(%q) error = %v", rec.ID, err)
		}
	}

	want := []string{"alice", "bob", "carol"}
	if got := list.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	bob, err := list.Get("bob")
	if err != nil {
		t.Fatalf("Get(bob) error = %v", err)
	}
	if !bob.Forfeited || bob.Coordinate != "A1" {
		t.Errorf("restored bob = %+v", bob)
	}
	if bob.SwapLink != "bob" {
		t.Errorf("restored swap link = %q, want self-loop", bob.SwapLink)
	}

	// The counter moved past the highest restored sequence, so a later
	// first-time join never reuses a number.
	dave, err := list.Add("dave")
	if err != nil {
		t.Fatalf("Add(dave) error = %v", err)
	}
	if dave.Sequence != 6 {
		t.Errorf("post-restore sequence = %d, want 6", dave.Sequence)
	}
}

func TestRestoreErrors(t *testing.T) {
	list := NewParticipantList()
	if err := list.Restore(nil); !errors.Is(err, ErrEmptyParticipantID) {
		t.Errorf("Restore(nil) error = %v, want %v", err, ErrEmptyParticipantID)
	}
	if err := list.Restore(&Participant{ID: " "}); !errors.Is(err, ErrEmptyParticipantID) {
		t.Errorf("Restore(blank id) error = %v, want %v", err, ErrEmptyParticipantID)
	}

	if err := list.Restore(&Participant{ID: "alice", Sequence: 1}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if err := list.Restore(&Participant{ID: "alice", Sequence: 1}); !errors.Is(err, ErrParticipantExists) {
		t.Errorf("duplicate Restore error = %v, want %v", err, ErrParticipantExists)
	}
}

func TestSwappedWith(t *testing.T) {
	p := &Participant{ID: "alice", SwapLink: "alice"}
	if got := p.SwappedWith(); got != "" {
		t.Errorf("self-looped SwappedWith() = %q, want empty", got)
	}

	p.SwapLink = "bob"
	if got := p.SwappedWith(); got != "bob" {
		t.Errorf("SwappedWith() = %q, want %q", got, "bob")
	}

	p.ResetSwapLink()
	if got := p.SwappedWith(); got != "" {
		t.Errorf("after reset SwappedWith() = %q, want empty", got)
	}
}
