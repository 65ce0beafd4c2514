package state

import (
	"errors"
	"fmt"
	"sync"
)

type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(fromID, toID string, condition func() bool)
}

type State interface {
	OnEnter()
	OnExit()
	GetID() string
	HandleAction(playerID string, action Action) error
}

// Action is one batched click submission.
type Action struct {
	Clicks int
}

var (
	// ErrTransitionNotAllowed is returned for a transition that was never declared.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrConditionNotMet is returned when a declared transition's guard fails.
	ErrConditionNotMet = errors.New("state transition condition not met")
	ErrStopped         = errors.New("state machine stopped")
)

// BaseStateMachine only follows declared transitions. A state with no
// outgoing transitions is terminal.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	stopped      bool
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.stopped {
		return ErrStopped
	}

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	condition, ok := sm.transitions[currentID][newID]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, currentID, newID)
	}
	if condition != nil && !condition() {
		return fmt.Errorf("%w: %s -> %s", ErrConditionNotMet, currentID, newID)
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(fromID, toID string, condition func() bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}
	sm.transitions[fromID][toID] = condition
}

// Stop exits the current state and refuses further transitions.
func (sm *BaseStateMachine) Stop() {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.stopped {
		return
	}
	sm.stopped = true
	sm.currentState.OnExit()
}

// RoomStateBase gives states no-op hooks.
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) HandleAction(playerID string, action Action) error {
	return nil
}
