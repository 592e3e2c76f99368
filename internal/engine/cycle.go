package engine

import (
	"sort"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// reportCycle runs when the work queues drain while tasks or scans are still
// pending: the remaining waits-for relationships must contain a cycle. It
// assembles the successor graph from the stalled bookkeeping, locates the
// minimal cycle in deterministic key order, reports it to the delegate, and
// fails the build.
func (e *Engine) reportCycle() {
	graph := make(map[*ruleInfo][]*ruleInfo)
	var activeRecords []*ruleScanRecord

	e.tasks.mu.Lock()
	for _, ti := range e.tasks.byRef {
		var successors []*ruleInfo
		for _, request := range ti.requestedBy {
			successors = append(successors, request.taskInfo.forRule)
		}
		for _, request := range ti.deferredScanRequests {
			successors = append(successors, request.rule)
			activeRecords = append(activeRecords, request.rule.scanRecord)
		}
		graph[ti.forRule] = successors
	}
	e.tasks.mu.Unlock()

	// Rules stuck mid-scan participate even when no task is live.
	for _, ri := range e.ruleInfos {
		if ri.isScanning() {
			activeRecords = append(activeRecords, ri.scanRecord)
		}
	}

	// Fold the wait edges recorded on scan records into the graph.
	visited := make(map[*ruleScanRecord]bool)
	for len(activeRecords) > 0 {
		record := activeRecords[len(activeRecords)-1]
		activeRecords = activeRecords[:len(activeRecords)-1]
		if record == nil || visited[record] {
			continue
		}
		visited[record] = true

		for _, request := range record.pausedInputRequests {
			graph[request.inputRule] = append(graph[request.inputRule],
				request.taskInfo.forRule)
		}
		for _, request := range record.deferredScanRequests {
			graph[request.inputRule] = append(graph[request.inputRule], request.rule)
			activeRecords = append(activeRecords, request.rule.scanRecord)
		}
	}

	cycle := findCycle(graph)
	if len(cycle) != 0 {
		path := make([]domain.Key, len(cycle))
		for i, ri := range cycle {
			path[i] = ri.rule.Key
		}
		e.delegate.CycleDetected(path)
		e.setFatalError(zerr.Wrap(domain.ErrCycleDetected,
			"key '"+string(path[0])+"'"))
	} else {
		e.setFatalError(domain.ErrCycleDetected)
	}

	// Tear down the stalled build state so the engine stays usable.
	e.tasks.mu.Lock()
	for _, ti := range e.tasks.byRef {
		ti.forRule.pendingTask = nil
		ti.forRule.setComplete(e)
	}
	e.tasks.byRef = make(map[Task]*taskInfo)
	e.tasks.finished = nil
	e.tasks.mu.Unlock()
	for _, ri := range e.ruleInfos {
		if ri.isScanning() {
			ri.scanRecord = nil
			ri.state = stateIncomplete
		}
	}
	e.numOutstanding = 0
	e.rulesToScan = nil
	e.inputRequests = nil
	e.readyTasks = nil
}

// findCycle searches the successor graph in sorted key order and returns the
// minimal cycle path, oriented from the first offending key back to itself.
func findCycle(graph map[*ruleInfo][]*ruleInfo) []*ruleInfo {
	roots := make([]*ruleInfo, 0, len(graph))
	for ri := range graph {
		roots = append(roots, ri)
	}
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].rule.Key < roots[j].rule.Key
	})

	var path []*ruleInfo
	onPath := make(map[*ruleInfo]bool)

	var visit func(ri *ruleInfo) bool
	visit = func(ri *ruleInfo) bool {
		path = append(path, ri)
		if onPath[ri] {
			return true
		}
		onPath[ri] = true
		for _, successor := range graph[ri] {
			if visit(successor) {
				return true
			}
		}
		delete(onPath, ri)
		path = path[:len(path)-1]
		return false
	}

	for _, root := range roots {
		path = path[:0]
		onPath = make(map[*ruleInfo]bool)
		if visit(root) {
			// Trim the lead-in so the path starts and ends at the
			// repeated rule, then flip it into dependency order.
			repeated := path[len(path)-1]
			start := 0
			for i, ri := range path {
				if ri == repeated {
					start = i
					break
				}
			}
			cycle := path[start:]
			reversed := make([]*ruleInfo, len(cycle))
			for i, ri := range cycle {
				reversed[len(cycle)-1-i] = ri
			}
			return reversed
		}
	}
	return nil
}
