package state

import (
	"errors"
	"testing"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            string
	OnEnterCalled bool
	OnExitCalled  bool
	Actions       []Action
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() string {
	return m.ID
}

func (m *MockState) HandleAction(playerID string, action Action) error {
	m.Actions = append(m.Actions, action)
	return nil
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	sm := NewBaseStateMachine(initialState)

	if !initialState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	nextState := &MockState{ID: "next"}

	sm := NewBaseStateMachine(initialState)
	sm.AddTransition("initial", "next", nil)
	initialState.reset()

	if err := sm.ChangeState(nextState); err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if !initialState.OnExitCalled {
		t.Error("Expected OnExit to be called on the old state")
	}

	if !nextState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the new state")
	}

	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_UndeclaredTransitionRejected(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}

	sm := NewBaseStateMachine(stateA)
	stateA.reset()

	err := sm.ChangeState(stateB)
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if stateA.OnExitCalled || stateB.OnEnterCalled {
		t.Error("No hooks should run for a rejected transition")
	}
	if sm.GetCurrentState() != stateA {
		t.Error("Current state should not change")
	}
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	stateC := &MockState{ID: "C"}

	sm := NewBaseStateMachine(stateA)

	sm.AddTransition("A", "B", func() bool { return true })
	sm.AddTransition("B", "C", func() bool { return false })

	stateA.reset()
	if err := sm.ChangeState(stateB); err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to be B, but got %s", sm.GetCurrentState().GetID())
	}

	stateB.reset()
	err := sm.ChangeState(stateC)
	if !errors.Is(err, ErrConditionNotMet) {
		t.Errorf("Expected ErrConditionNotMet, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.GetCurrentState().GetID())
	}
	if stateB.OnExitCalled {
		t.Error("OnExit should not be called on the current state if transition is blocked")
	}
	if stateC.OnEnterCalled {
		t.Error("OnEnter should not be called on the new state if transition is blocked")
	}
}

func TestStateMachine_Stop(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	sm := NewBaseStateMachine(stateA)
	sm.AddTransition("A", "B", nil)

	sm.Stop()
	if !stateA.OnExitCalled {
		t.Error("Stop should exit the current state")
	}
	if err := sm.ChangeState(stateB); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}

	stateA.reset()
	sm.Stop()
	if stateA.OnExitCalled {
		t.Error("Second Stop should not exit again")
	}
}
