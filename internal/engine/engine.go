// Package engine implements the incremental build engine: a rule table, an
// iterative dependency scanner, and the task execution loop that brings a
// requested key up to date while doing the minimum work across builds.
package engine

import (
	"math"
	"os"
	"sort"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/zerr"
)

// Engine owns all mutable build state. Multiple engines may coexist; a
// single engine runs one build at a time.
type Engine struct {
	delegate Delegate
	logger   ports.Logger

	db    ports.Database
	trace *tracer

	// currentIteration sequentially timestamps build results. It is
	// incremented at the start of each Build call and persisted.
	currentIteration uint64

	ruleInfos map[domain.Key]*ruleInfo

	// tasks tracks live task instances; lanes read it through the task
	// callback APIs while the build loop inserts and removes entries.
	tasks *taskTable

	// Work queues drained by the build loop.
	rulesToScan   []ruleScanRequest
	inputRequests []taskInputRequest
	readyTasks    []*taskInfo

	// numOutstanding counts tasks readied but not yet finished.
	numOutstanding int

	building bool
	fatalErr error
}

// New creates an engine reporting to the given delegate.
func New(delegate Delegate, logger ports.Logger) *Engine {
	return &Engine{
		delegate:  delegate,
		logger:    logger,
		ruleInfos: make(map[domain.Key]*ruleInfo),
		tasks:     newTaskTable(),
	}
}

// AttachDB attaches the persistent result database. It must be called at
// most once, before any rule is registered; the engine adopts the database's
// iteration counter.
func (e *Engine) AttachDB(db ports.Database) error {
	if e.db != nil {
		return domain.ErrDatabaseAttached
	}
	if len(e.ruleInfos) != 0 {
		return zerr.Wrap(domain.ErrDatabaseAttached, "rules already registered")
	}
	iteration, err := db.GetCurrentIteration()
	if err != nil {
		return zerr.Wrap(err, "failed to read iteration counter")
	}
	e.db = db
	e.currentIteration = iteration
	return nil
}

// EnableTracing starts writing a JSON-lines trace of engine decisions to the
// file at path.
func (e *Engine) EnableTracing(path string) error {
	t, err := newTracer(path)
	if err != nil {
		return err
	}
	e.trace = t
	return nil
}

// CloseTracing flushes and closes the trace file, if tracing was enabled.
func (e *Engine) CloseTracing() error {
	if e.trace == nil {
		return nil
	}
	t := e.trace
	e.trace = nil
	return t.close()
}

// AddRule registers a rule. All rules must be registered before Build is
// first called for a key that reaches them, and a key may be registered only
// once.
func (e *Engine) AddRule(rule Rule) error {
	_, err := e.addRuleInfo(rule)
	return err
}

func (e *Engine) addRuleInfo(rule Rule) (*ruleInfo, error) {
	if _, exists := e.ruleInfos[rule.Key]; exists {
		return nil, zerr.Wrap(domain.ErrDuplicateRule, "key '"+string(rule.Key)+"'")
	}
	ri := &ruleInfo{rule: rule}
	e.ruleInfos[rule.Key] = ri

	// Retrieve any stored result. Lookup failures and corrupt records
	// degrade to "never built", forcing the rule to run.
	if e.db != nil {
		result, err := e.db.LookupRuleResult(rule.Key)
		if err != nil {
			e.logger.Warn("discarding unreadable result for " + string(rule.Key))
		} else if result != nil {
			ri.result = *result
		}
	}
	return ri, nil
}

// getRuleInfoForKey resolves a key to its rule, consulting the delegate for
// unknown keys.
func (e *Engine) getRuleInfoForKey(key domain.Key) (*ruleInfo, error) {
	if ri, ok := e.ruleInfos[key]; ok {
		return ri, nil
	}
	rule, ok := e.delegate.LookupRule(key)
	if !ok {
		return nil, zerr.Wrap(domain.ErrMissingRule, "key '"+string(key)+"'")
	}
	return e.addRuleInfo(rule)
}

// Build computes the value of the requested key, running only the rules
// whose inputs have changed since the previous build. It blocks until the
// value is produced. Build is re-entrant between builds only.
func (e *Engine) Build(key domain.Key) (domain.Value, error) {
	if e.building {
		return nil, domain.ErrBuildInProgress
	}
	e.building = true
	e.fatalErr = nil
	defer func() { e.building = false }()

	if e.db != nil {
		if err := e.db.BuildStarted(); err != nil {
			return nil, zerr.Wrap(err, "failed to start build")
		}
	}

	// Conceptually every complete rule becomes incomplete here; the reset
	// happens lazily through the CheckedAt comparison in isComplete.
	if e.currentIteration == math.MaxUint64 {
		panic("engine: iteration counter overflow")
	}
	e.currentIteration++
	e.trace.buildStarted(e.currentIteration)

	ri, err := e.getRuleInfoForKey(key)
	if err != nil {
		return nil, err
	}

	// A dummy input request drives the root key up to date.
	e.inputRequests = append(e.inputRequests, taskInputRequest{inputRule: ri})
	e.executeTasks()

	if e.db != nil {
		if err := e.db.SetCurrentIteration(e.currentIteration); err != nil {
			return nil, zerr.Wrap(err, "failed to persist iteration counter")
		}
		if err := e.db.BuildComplete(); err != nil {
			return nil, zerr.Wrap(err, "failed to complete build")
		}
	}
	e.trace.buildEnded(e.currentIteration)

	if e.fatalErr != nil {
		return nil, e.fatalErr
	}
	if !ri.isComplete(e) {
		return nil, zerr.Wrap(domain.ErrCycleDetected, "key '"+string(key)+"'")
	}
	return ri.result.Value, nil
}

// TaskNeedsInput declares an input for a task. Valid only between Start and
// the completion call; the input's value is delivered via ProvideValue with
// the given id.
func (e *Engine) TaskNeedsInput(task Task, key domain.Key, inputID uint) {
	if inputID == mustFollowID {
		panic("engine: attempt to use reserved input id")
	}
	e.addTaskInputRequest(task, key, inputID)
}

// TaskMustFollow orders this task after the given key without recording a
// dependency or delivering a value.
func (e *Engine) TaskMustFollow(task Task, key domain.Key) {
	e.addTaskInputRequest(task, key, mustFollowID)
}

func (e *Engine) addTaskInputRequest(task Task, key domain.Key, inputID uint) {
	ti := e.tasks.lookup(task)
	if ti == nil {
		panic("engine: input request for unknown task")
	}
	switch ti.forRule.state {
	case stateInProgressWaiting:
	case stateInProgressComputing:
		// The task asked for more inputs after InputsAvailable; it goes
		// back to waiting and will be readied again.
		ti.forRule.state = stateInProgressWaiting
	default:
		panic("engine: invalid state for requesting inputs")
	}
	inputRule, err := e.getRuleInfoForKey(key)
	if err != nil {
		e.setFatalError(err)
		return
	}
	e.inputRequests = append(e.inputRequests, taskInputRequest{
		taskInfo:  ti,
		inputRule: inputRule,
		inputID:   inputID,
	})
	ti.waitCount++
}

// TaskDiscoveredDependency records a dependency of a task discovered during
// execution. The value is not delivered; the key is stored in the result's
// dependency set and scanned on future builds. Safe to call from execution
// queue lanes.
func (e *Engine) TaskDiscoveredDependency(task Task, key domain.Key) {
	ti := e.tasks.lookup(task)
	if ti == nil {
		panic("engine: discovered dependency for unknown task")
	}
	ti.mu.Lock()
	ti.discovered = append(ti.discovered, key)
	ti.mu.Unlock()
}

// TaskIsComplete reports the task's computed value. When forceChange is set
// the value is treated as changed even if byte-equal to the prior result.
// Safe to call from execution queue lanes.
func (e *Engine) TaskIsComplete(task Task, value domain.Value, forceChange bool) {
	ti := e.tasks.lookup(task)
	if ti == nil {
		panic("engine: completion for unknown task")
	}
	ti.mu.Lock()
	ti.completionValue = value
	ti.forceChange = forceChange
	ti.mu.Unlock()
	e.tasks.finish(ti)
}

func (e *Engine) setFatalError(err error) {
	if e.fatalErr == nil {
		e.fatalErr = err
	}
}

// DumpGraphToFile writes the known rule graph in Graphviz DOT format.
func (e *Engine) DumpGraphToFile(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is provided by the user
	if err != nil {
		return zerr.Wrap(err, "failed to open graph output path")
	}
	defer f.Close() //nolint:errcheck // best effort close after explicit flush

	keys := make([]string, 0, len(e.ruleInfos))
	for key := range e.ruleInfos {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	w := newDotWriter(f)
	w.header("anvil")
	for _, key := range keys {
		ri := e.ruleInfos[domain.Key(key)]
		w.node(key)
		for _, dep := range ri.result.Dependencies() {
			w.edge(key, string(dep))
		}
	}
	return w.footer()
}
