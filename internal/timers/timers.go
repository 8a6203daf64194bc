// Package timers implements setTimeout/setInterval style timers whose
// callbacks run on an event loop instead of on the timer goroutine.
package timers

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mstoykov/k6-taskqueue-lib/taskqueue"
	"github.com/sirupsen/logrus"
)

// Timers keeps the active timers of one event loop. Apart from New and Stop,
// all methods must be called from the event loop.
type Timers struct {
	clock  clock.Clock
	logger logrus.FieldLogger

	timerIDCounter uint64

	timers map[uint64]time.Time
	queue  *timerQueue

	// taskQueue moves expired timers from the clock's goroutines back onto
	// the event loop, preserving their order.
	taskQueueMu sync.Mutex
	taskQueue   *taskqueue.TaskQueue
}

// New returns a Timers instance that queues its callbacks with registerCallback.
func New(registerCallback func() func(func() error), clk clock.Clock, logger logrus.FieldLogger) *Timers {
	return &Timers{
		clock:     clk,
		logger:    logger,
		timers:    make(map[uint64]time.Time),
		queue:     new(timerQueue),
		taskQueue: taskqueue.New(registerCallback),
	}
}

func (e *Timers) nextID() uint64 {
	e.timerIDCounter++
	return e.timerIDCounter
}

// SetTimeout runs callback once after delay. The name is only used for logging.
func (e *Timers) SetTimeout(name string, delay time.Duration, callback func()) uint64 {
	id := e.nextID()
	e.timerInitialization(name, callback, delay, false, id)
	return id
}

// SetInterval runs callback every delay until the timer is cleared.
func (e *Timers) SetInterval(name string, delay time.Duration, callback func()) uint64 {
	id := e.nextID()
	e.timerInitialization(name, callback, delay, true, id)
	return id
}

// Clear stops the timer with the given id. Unknown or expired ids are ignored,
// so 0 can be used as "no timer".
func (e *Timers) Clear(id uint64) {
	if _, exists := e.timers[id]; !exists {
		return
	}
	delete(e.timers, id)

	wasFirst := e.queue.first() != nil && e.queue.first().id == id
	e.queue.remove(id)
	if wasFirst {
		e.queue.stopTimer()
		if e.queue.length() > 0 {
			e.setupTaskTimeout()
		}
	}
}

// Active reports whether the timer with the given id is still scheduled.
func (e *Timers) Active(id uint64) bool {
	_, exists := e.timers[id]
	return exists
}

// Len returns the number of scheduled timers.
func (e *Timers) Len() int {
	return e.queue.length()
}

// Stop cancels every timer. Callbacks that were already handed to the event
// loop are dropped by it as their timers are gone.
func (e *Timers) Stop() {
	for _, t := range e.queue.queue {
		e.logger.Debugf("%s timer %d was stopped", t.name, t.id)
	}
	e.queue.stopTimer()
	e.queue = new(timerQueue)
	e.timers = make(map[uint64]time.Time)

	e.taskQueueMu.Lock()
	defer e.taskQueueMu.Unlock()
	if e.taskQueue != nil {
		e.taskQueue.Close()
		e.taskQueue = nil
	}
}

func (e *Timers) timerInitialization(
	name string, callback func(), timeout time.Duration, repeat bool, id uint64,
) {
	if timeout < 0 {
		timeout = 0
	}

	task := func() error {
		if _, exist := e.timers[id]; !exist {
			return nil
		}

		callback()

		// the callback may have cleared its own timer
		if _, exist := e.timers[id]; !exist {
			return nil
		}

		if repeat {
			e.timerInitialization(name, callback, timeout, repeat, id)
		} else {
			delete(e.timers, id)
		}

		return nil
	}

	e.runAfterTimeout(&timer{
		id:          id,
		task:        task,
		nextTrigger: e.clock.Now().Add(timeout),
		name:        name,
	})
}

func (e *Timers) runAfterTimeout(t *timer) {
	e.timers[t.id] = t.nextTrigger

	index := e.queue.add(t)
	if index != 0 {
		return // not a timer at the very beginning
	}

	e.setupTaskTimeout()
}

func (e *Timers) runFirstTask() error {
	t := e.queue.first()
	if t == nil {
		return nil // everything was cleared
	}
	if t.nextTrigger.After(e.clock.Now()) {
		// the timer that scheduled us was cleared, wait for the next one
		e.setupTaskTimeout()
		return nil
	}
	e.queue.pop()

	err := t.task()

	if e.queue.length() > 0 {
		e.setupTaskTimeout()
	}

	return err
}

func (e *Timers) setupTaskTimeout() {
	e.queue.stopTimer()
	delay := -e.clock.Since(e.queue.first().nextTrigger)
	if delay <= 0 {
		e.queueFirstTask()
		return
	}
	e.queue.head = e.clock.AfterFunc(delay, e.queueFirstTask)
}

// queueFirstTask hands the first timer to the event loop. It is called from
// the clock's goroutines.
func (e *Timers) queueFirstTask() {
	e.taskQueueMu.Lock()
	defer e.taskQueueMu.Unlock()
	if e.taskQueue != nil {
		e.taskQueue.Queue(e.runFirstTask)
	}
}

// this is just a small struct to keep the internals of a timer
type timer struct {
	id          uint64
	nextTrigger time.Time
	task        func() error
	name        string
}

// timerQueue is a list of timers ordered by their trigger time.
type timerQueue struct {
	queue []*timer
	head  *clock.Timer
}

func (tq *timerQueue) add(t *timer) int {
	var i int
	// don't use range as we want to index to go over one if it needs to go to the end
	for ; i < len(tq.queue); i++ {
		if tq.queue[i].nextTrigger.After(t.nextTrigger) {
			break
		}
	}

	tq.queue = append(tq.queue, nil)
	copy(tq.queue[i+1:], tq.queue[i:])
	tq.queue[i] = t
	return i
}

func (tq *timerQueue) stopTimer() {
	if tq.head != nil {
		tq.head.Stop()
		tq.head = nil
	}
}

func (tq *timerQueue) remove(id uint64) {
	i := tq.findIndex(id)
	if i == -1 {
		return
	}

	tq.queue = append(tq.queue[:i], tq.queue[i+1:]...)
}

func (tq *timerQueue) findIndex(id uint64) int {
	for i, timer := range tq.queue {
		if id == timer.id {
			return i
		}
	}
	return -1
}

func (tq *timerQueue) pop() *timer {
	length := len(tq.queue)
	if length == 0 {
		return nil
	}
	t := tq.queue[0]
	copy(tq.queue, tq.queue[1:])
	tq.queue = tq.queue[:length-1]
	return t
}

func (tq *timerQueue) length() int {
	return len(tq.queue)
}

func (tq *timerQueue) first() *timer {
	if tq.length() == 0 {
		return nil
	}
	return tq.queue[0]
}
