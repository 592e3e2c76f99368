package engine

import (
	"bytes"
	"sync"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// taskTable tracks live tasks and the queue of completions posted from
// execution queue lanes. The build loop inserts and removes entries; lanes
// only look tasks up and post to the finished queue.
type taskTable struct {
	mu    sync.Mutex
	byRef map[Task]*taskInfo

	finished []*taskInfo
	// wake is a 1-slot signal channel; the loop blocks on it when idle.
	wake chan struct{}
}

func newTaskTable() *taskTable {
	return &taskTable{
		byRef: make(map[Task]*taskInfo),
		wake:  make(chan struct{}, 1),
	}
}

func (t *taskTable) register(task Task, ti *taskInfo) {
	t.mu.Lock()
	t.byRef[task] = ti
	t.mu.Unlock()
}

func (t *taskTable) lookup(task Task) *taskInfo {
	t.mu.Lock()
	ti := t.byRef[task]
	t.mu.Unlock()
	return ti
}

func (t *taskTable) remove(task Task) {
	t.mu.Lock()
	delete(t.byRef, task)
	t.mu.Unlock()
}

func (t *taskTable) count() int {
	t.mu.Lock()
	n := len(t.byRef)
	t.mu.Unlock()
	return n
}

// finish posts a completed task and wakes the build loop.
func (t *taskTable) finish(ti *taskInfo) {
	t.mu.Lock()
	t.finished = append(t.finished, ti)
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// takeFinished drains the finished queue.
func (t *taskTable) takeFinished() []*taskInfo {
	t.mu.Lock()
	out := t.finished
	t.finished = nil
	t.mu.Unlock()
	return out
}

// scanRule requests the scanning of a rule to determine whether it needs to
// run in the current iteration. It returns true if the rule is already
// scanned; otherwise the rule is enqueued for processing.
func (e *Engine) scanRule(ri *ruleInfo) bool {
	if ri.isScanned(e) {
		return true
	}
	if ri.isScanning() {
		return false
	}

	e.trace.scanEnter(ri.rule.Key, e.currentIteration)
	if ri.rule.UpdateStatus != nil {
		ri.rule.UpdateStatus(domain.RuleScanning)
	}

	// Never built: it must run.
	if ri.result.CheckedAt == 0 {
		e.trace.needsToRun(ri.rule.Key, e.currentIteration, "never-built")
		ri.state = stateNeedsToRun
		return true
	}

	// The rule's own view of external state is stale.
	if ri.rule.IsResultValid != nil && !ri.rule.IsResultValid(ri.rule, ri.result.Value) {
		e.trace.needsToRun(ri.rule.Key, e.currentIteration, "invalid-value")
		ri.state = stateNeedsToRun
		return true
	}

	deps := ri.result.Dependencies()
	if len(deps) == 0 {
		e.trace.scanSkipValid(ri.rule.Key, e.currentIteration)
		ri.state = stateDoesNotNeedToRun
		return true
	}

	// Otherwise a recursive scan of the inputs is required; enqueue the
	// rule on the explicit scan stack.
	ri.state = stateIsScanning
	ri.scanRecord = &ruleScanRecord{deps: deps}
	e.rulesToScan = append(e.rulesToScan, ruleScanRequest{rule: ri})
	return false
}

// demandRule requests construction of the rule's value. It returns true if
// the value is already available; otherwise the rule's task is started.
func (e *Engine) demandRule(ri *ruleInfo) bool {
	if ri.isComplete(e) {
		return true
	}
	if ri.isInProgress() {
		return false
	}

	if ri.state == stateDoesNotNeedToRun {
		ri.setComplete(e)
		e.trace.scanSkipValid(ri.rule.Key, e.currentIteration)
		if ri.rule.UpdateStatus != nil {
			ri.rule.UpdateStatus(domain.RuleComplete)
		}
		return true
	}

	task := ri.rule.Action()
	if task == nil {
		e.setFatalError(zerr.With(zerr.New("rule action returned no task"),
			"key", string(ri.rule.Key)))
		ri.setComplete(e)
		return true
	}
	ti := &taskInfo{task: task, forRule: ri}
	e.tasks.register(task, ti)

	e.trace.executeBegin(ri.rule.Key, e.currentIteration)
	ri.state = stateInProgressWaiting
	ri.pendingTask = ti

	// The dependency lists are rebuilt as the task requests inputs.
	hadPrior := ri.result.CheckedAt != 0
	prior := ri.result.Value
	ri.result.Declared = nil
	ri.result.Discovered = nil

	task.Start(e)
	if hadPrior {
		task.ProvidePriorValue(e, prior)
	}

	if ti.waitCount == 0 {
		e.readyTasks = append(e.readyTasks, ti)
	}
	return false
}

// processRuleScanRequest walks the remaining stored dependencies of a
// scanning rule, deferring when an input is itself being scanned or built.
func (e *Engine) processRuleScanRequest(request ruleScanRequest) {
	ri := request.rule
	record := ri.scanRecord

	for {
		if request.inputRule == nil {
			inputRule, err := e.getRuleInfoForKey(record.deps[request.inputIndex])
			if err != nil {
				// A dependency with no rule cannot be checked; the
				// safe answer is to run the task again.
				e.trace.needsToRun(ri.rule.Key, e.currentIteration, "missing-input-rule")
				e.finishScanRequest(ri, stateNeedsToRun)
				return
			}
			request.inputRule = inputRule
		}
		inputRule := request.inputRule

		if !e.scanRule(inputRule) {
			// Input still scanning: resume once it settles.
			inputRule.scanRecord.deferredScanRequests =
				append(inputRule.scanRecord.deferredScanRequests, request)
			return
		}

		if !e.demandRule(inputRule) {
			// Input is running: resume when its task finishes.
			inputRule.pendingTask.deferredScanRequests =
				append(inputRule.pendingTask.deferredScanRequests, request)
			return
		}

		// The input is up to date; if it was computed after this rule
		// was last checked, this rule is dirty.
		if ri.result.CheckedAt < inputRule.result.BuiltAt {
			e.trace.needsToRunInput(ri.rule.Key, e.currentIteration, inputRule.rule.Key)
			e.finishScanRequest(ri, stateNeedsToRun)
			return
		}

		request.inputIndex++
		request.inputRule = nil
		if request.inputIndex == len(record.deps) {
			break
		}
	}

	e.trace.scanSkipValid(ri.rule.Key, e.currentIteration)
	e.finishScanRequest(ri, stateDoesNotNeedToRun)
}

// finishScanRequest settles a scan and releases everything waiting on it.
func (e *Engine) finishScanRequest(ri *ruleInfo, newState ruleState) {
	record := ri.scanRecord
	e.rulesToScan = append(e.rulesToScan, record.deferredScanRequests...)
	e.inputRequests = append(e.inputRequests, record.pausedInputRequests...)
	ri.scanRecord = nil
	ri.state = newState
}

func (e *Engine) decrementTaskWaitCount(ti *taskInfo) {
	ti.waitCount--
	if ti.waitCount == 0 {
		e.readyTasks = append(e.readyTasks, ti)
	}
}

// executeTasks drains the engine work queues until the requested work is
// complete, blocking on the completion queue while tasks run on the
// execution queue. Detecting a drained queue with live or scanning rules
// left over means the graph has a cycle.
func (e *Engine) executeTasks() {
	var finishedInputRequests []taskInputRequest

	for {
		didWork := false

		// Pending rule scans.
		for len(e.rulesToScan) > 0 && e.fatalErr == nil {
			didWork = true
			request := e.rulesToScan[len(e.rulesToScan)-1]
			e.rulesToScan = e.rulesToScan[:len(e.rulesToScan)-1]
			e.processRuleScanRequest(request)
		}

		// Pending input requests.
		for len(e.inputRequests) > 0 && e.fatalErr == nil {
			didWork = true
			request := e.inputRequests[len(e.inputRequests)-1]
			e.inputRequests = e.inputRequests[:len(e.inputRequests)-1]

			if !e.scanRule(request.inputRule) {
				// Pause the request until the scan settles.
				request.inputRule.scanRecord.pausedInputRequests =
					append(request.inputRule.scanRecord.pausedInputRequests, request)
				continue
			}

			available := e.demandRule(request.inputRule)
			if request.taskInfo == nil {
				continue
			}
			if available {
				finishedInputRequests = append(finishedInputRequests, request)
			} else {
				request.inputRule.pendingTask.requestedBy =
					append(request.inputRule.pendingTask.requestedBy, request)
			}
		}

		// Inputs whose values are ready to deliver.
		for len(finishedInputRequests) > 0 && e.fatalErr == nil {
			didWork = true
			request := finishedInputRequests[len(finishedInputRequests)-1]
			finishedInputRequests = finishedInputRequests[:len(finishedInputRequests)-1]

			// Must-follow inputs order execution only.
			if request.inputID == mustFollowID {
				e.decrementTaskWaitCount(request.taskInfo)
				continue
			}

			request.taskInfo.forRule.result.Declared = append(
				request.taskInfo.forRule.result.Declared, request.inputRule.rule.Key)
			request.taskInfo.task.ProvideValue(
				e, request.inputID, request.inputRule.result.Value)
			e.decrementTaskWaitCount(request.taskInfo)
		}

		// Tasks with all inputs delivered.
		for len(e.readyTasks) > 0 && e.fatalErr == nil {
			didWork = true
			ti := e.readyTasks[len(e.readyTasks)-1]
			e.readyTasks = e.readyTasks[:len(e.readyTasks)-1]

			ti.forRule.state = stateInProgressComputing
			if !ti.readied {
				ti.readied = true
				e.numOutstanding++
			}
			ti.task.InputsAvailable(e)
		}

		// Completed tasks posted by lanes (or synchronously above).
		for _, ti := range e.tasks.takeFinished() {
			didWork = true
			finishedInputRequests = append(
				finishedInputRequests, e.processFinishedTask(ti)...)
		}

		// Nothing to do but tasks still running: wait for a completion.
		if !didWork && e.numOutstanding != 0 {
			e.tasks.mu.Lock()
			idle := len(e.tasks.finished) == 0
			e.tasks.mu.Unlock()
			if idle {
				<-e.tasks.wake
			}
			didWork = true
		}

		if !didWork {
			break
		}
	}

	// Queues drained with live work left over: the graph is cyclic.
	if e.tasks.count() != 0 || e.hasScanningRules() {
		e.reportCycle()
	}
}

// processFinishedTask completes a rule: folds in the computed value and the
// discovered dependencies, persists the result, and releases the rule's
// waiters. It returns the input requests now ready for delivery.
func (e *Engine) processFinishedTask(ti *taskInfo) []taskInputRequest {
	ri := ti.forRule
	if ri.state != stateInProgressComputing {
		panic("engine: finished task in invalid state")
	}

	ti.mu.Lock()
	value := ti.completionValue
	forceChange := ti.forceChange
	discovered := ti.discovered
	ti.mu.Unlock()

	// An unchanged value keeps its original BuiltAt, so dependants that
	// already consumed it stay clean.
	if forceChange || !bytes.Equal(value, ri.result.Value) {
		ri.result.Value = value
		ri.result.BuiltAt = e.currentIteration
	}
	ri.result.Discovered = discovered

	ri.pendingTask = nil
	ri.setComplete(e)
	e.trace.executeComplete(ri.rule.Key, e.currentIteration,
		ri.result.BuiltAt == e.currentIteration)
	if ri.rule.UpdateStatus != nil {
		ri.rule.UpdateStatus(domain.RuleComplete)
	}

	// Discovered dependencies must themselves be brought up to date; push
	// dummy requests for them.
	for _, key := range discovered {
		inputRule, err := e.getRuleInfoForKey(key)
		if err != nil {
			e.setFatalError(err)
			break
		}
		e.inputRequests = append(e.inputRequests, taskInputRequest{inputRule: inputRule})
	}

	if e.db != nil {
		if err := e.db.SetRuleResult(ri.rule.Key, ri.result); err != nil {
			e.setFatalError(zerr.Wrap(err, "failed to persist rule result"))
		}
	}

	e.rulesToScan = append(e.rulesToScan, ti.deferredScanRequests...)
	ready := ti.requestedBy

	e.numOutstanding--
	e.tasks.remove(ti.task)
	return ready
}

func (e *Engine) hasScanningRules() bool {
	for _, ri := range e.ruleInfos {
		if ri.isScanning() {
			return true
		}
	}
	return false
}
