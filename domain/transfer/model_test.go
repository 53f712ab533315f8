package transfer

import "testing"

func TestStatusTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusCreating:           false,
		StatusTransporting:       false,
		StatusAwaitingValidation: false,
		StatusCleanup:            false,
		StatusCompleted:          true,
		StatusFailed:             true,
		StatusCleanupFailed:      true,
		StatusError:              true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("Status(%s).Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus("importing"); got != StatusTransporting {
		t.Errorf("NormalizeStatus(importing) = %q, want %q", got, StatusTransporting)
	}
	if got := NormalizeStatus("completed"); got != StatusCompleted {
		t.Errorf("NormalizeStatus(completed) = %q, want %q", got, StatusCompleted)
	}
}

func TestPhaseOpenClose(t *testing.T) {
	tr := &Transfer{}

	tr.OpenPhase(PhaseTransmission, 1000)
	if tr.Phases[PhaseTransmission].StartMs != 1000 {
		t.Fatalf("expected StartMs=1000")
	}

	duration := tr.ClosePhase(PhaseTransmission, 1500)
	if duration != 500 {
		t.Errorf("ClosePhase duration = %d, want 500", duration)
	}
	if !tr.Phases[PhaseTransmission].Closed() {
		t.Error("expected phase to be closed")
	}
}

func TestClosePhaseNeverOpened(t *testing.T) {
	tr := &Transfer{}
	if got := tr.ClosePhase(PhaseValidation, 1000); got != 0 {
		t.Errorf("ClosePhase on unopened phase = %d, want 0", got)
	}
}

func TestValidationTimerHandle(t *testing.T) {
	tr := &Transfer{}
	if tr.HasArmedValidationTimer() {
		t.Error("expected no timer armed initially")
	}
	tr.ArmValidationTimer("timer-1")
	if !tr.HasArmedValidationTimer() {
		t.Error("expected timer armed after ArmValidationTimer")
	}
	tr.DisarmValidationTimer()
	if tr.HasArmedValidationTimer() {
		t.Error("expected no timer armed after DisarmValidationTimer")
	}
}

func TestNewTransferIDShape(t *testing.T) {
	id := NewTransferID(1700000000000)
	if len(id) < len("transfer_1700000000000_") {
		t.Fatalf("unexpected transferId shape: %s", id)
	}
}
