package engine

import (
	"sync"

	"go.trai.ch/anvil/internal/core/domain"
)

// Rule associates a key with the machinery to (re)compute its value.
type Rule struct {
	Key domain.Key

	// Action constructs a fresh task instance when the engine decides the
	// rule must run. The engine owns the returned task until completion.
	Action func() Task

	// IsResultValid reports whether a stored value is still current with
	// respect to external state, assuming its dependencies are unchanged.
	// A nil validator accepts every stored value.
	IsResultValid func(rule Rule, value domain.Value) bool

	// UpdateStatus, when set, observes rule state transitions. It fires
	// once with RuleScanning and once with RuleComplete per build in which
	// the rule is visited.
	UpdateStatus func(status domain.RuleStatus)
}

// Task is a live computation instance for one rule during one build.
//
// Start, ProvidePriorValue, ProvideValue and InputsAvailable are invoked on
// the engine's build loop. A task that dispatches work to the execution
// queue completes from the worker lane by calling TaskIsComplete.
type Task interface {
	// Start is called once; the task declares its initial inputs here via
	// TaskNeedsInput.
	Start(eng *Engine)

	// ProvidePriorValue supplies the result of the previous run, when one
	// exists, before any input is delivered.
	ProvidePriorValue(eng *Engine, value domain.Value)

	// ProvideValue delivers a requested input. inputID matches the value
	// passed to TaskNeedsInput.
	ProvideValue(eng *Engine, inputID uint, value domain.Value)

	// InputsAvailable is called once all requested inputs have been
	// delivered. The task must eventually call TaskIsComplete, and may
	// first request further inputs or report discovered dependencies.
	InputsAvailable(eng *Engine)
}

// Delegate resolves keys the engine has no registered rule for and receives
// cycle reports.
type Delegate interface {
	// LookupRule synthesizes a rule for an unknown key. It is consulted at
	// most once per key; returning false fails the build.
	LookupRule(key domain.Key) (Rule, bool)

	// CycleDetected reports the minimal dependency cycle found during a
	// build, from the first offending key back to itself.
	CycleDetected(path []domain.Key)
}

// mustFollowID marks input requests that only order execution; they are
// neither recorded as dependencies nor delivered to the task.
const mustFollowID = ^uint(0)

type ruleState int

const (
	// stateIncomplete is the initial rule state.
	stateIncomplete ruleState = iota
	// stateIsScanning marks a rule whose stored result is being checked.
	stateIsScanning
	// stateNeedsToRun marks a dirty rule whose task has not yet started.
	stateNeedsToRun
	// stateDoesNotNeedToRun marks a clean rule not yet marked complete.
	stateDoesNotNeedToRun
	// stateInProgressWaiting marks a rule whose task awaits inputs.
	stateInProgressWaiting
	// stateInProgressComputing marks a rule whose task is computing.
	stateInProgressComputing
	// stateComplete marks a rule with an available result. Completeness is
	// iteration-relative; see ruleInfo.isComplete.
	stateComplete
)

// taskInputRequest records one pending input for a task. A nil taskInfo is a
// dummy request used to force a key up to date without a consumer.
type taskInputRequest struct {
	taskInfo  *taskInfo
	inputRule *ruleInfo
	inputID   uint
}

// ruleScanRequest tracks the progress of scanning one rule's stored
// dependency set.
type ruleScanRequest struct {
	rule       *ruleInfo
	inputIndex int
	// inputRule caches the looked-up input when the request is deferred,
	// avoiding a redundant table lookup on resumption.
	inputRule *ruleInfo
}

// ruleScanRecord holds the bookkeeping for an in-progress scan: the frozen
// dependency set under inspection, input requests paused until the scan
// completes, and scans of other rules deferred on this one.
type ruleScanRecord struct {
	deps                 []domain.Key
	pausedInputRequests  []taskInputRequest
	deferredScanRequests []ruleScanRequest
}

type ruleInfo struct {
	rule   Rule
	state  ruleState
	result domain.Result

	// scanRecord is set while state == stateIsScanning.
	scanRecord *ruleScanRecord
	// pendingTask is set while the rule is in progress.
	pendingTask *taskInfo
}

func (ri *ruleInfo) isScanning() bool {
	return ri.state == stateIsScanning
}

func (ri *ruleInfo) isInProgress() bool {
	return ri.state == stateInProgressWaiting || ri.state == stateInProgressComputing
}

// isComplete reports whether the rule has a result current for this build.
// Completion is tracked lazily: incrementing the iteration implicitly makes
// every previously complete rule stale again.
func (ri *ruleInfo) isComplete(e *Engine) bool {
	return ri.state == stateComplete && ri.result.CheckedAt == e.currentIteration
}

func (ri *ruleInfo) setComplete(e *Engine) {
	ri.state = stateComplete
	ri.result.CheckedAt = e.currentIteration
}

// isScanned reports whether scanning has finished for this build.
func (ri *ruleInfo) isScanned(e *Engine) bool {
	if ri.state == stateComplete {
		return ri.isComplete(e)
	}
	return ri.state > stateIsScanning
}

type taskInfo struct {
	task    Task
	forRule *ruleInfo

	// requestedBy lists the input requests waiting on this task, fulfilled
	// once it completes.
	requestedBy []taskInputRequest
	// deferredScanRequests lists scans of other rules waiting on this task.
	deferredScanRequests []ruleScanRequest
	// waitCount is the number of inputs the task is still waiting on.
	waitCount int
	// readied records that the task has been counted as outstanding; a
	// task that requests more inputs after InputsAvailable is readied
	// again without being recounted.
	readied bool

	// mu guards discovered, completionValue and forceChange, which may be
	// written from execution queue lanes.
	mu              sync.Mutex
	discovered      []domain.Key
	completionValue domain.Value
	forceChange     bool
}
