// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type TimerTask struct {
	ID       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x any) {
	task := x.(*TimerTask)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs callbacks after a delay, optionally repeating. Due tasks
// are collected every resolution tick and each callback runs on its own
// goroutine.
type TimerManager struct {
	queue      TimerQueue
	byID       map[int64]*TimerTask
	mutex      sync.Mutex
	nextID     int64
	resolution time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	manager := &TimerManager{
		queue:      make(TimerQueue, 0),
		byID:       make(map[int64]*TimerTask),
		nextID:     1,
		resolution: resolution,
		stop:       make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		ID:       m.nextID,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextID++

	heap.Push(&m.queue, task)
	m.byID[task.ID] = task
	return task.ID
}

// RemoveTimer cancels a pending task. Unknown or already fired ids are ignored.
func (m *TimerManager) RemoveTimer(timerID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.byID[timerID]
	if !ok {
		return
	}
	delete(m.byID, timerID)
	if task.index >= 0 {
		heap.Remove(&m.queue, task.index)
	}
}

func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts the processing loop. Pending tasks never fire.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				go task.Callback()
			}
		}
	}
}

func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var fired []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		fired = append(fired, task)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		} else {
			delete(m.byID, task.ID)
		}
	}
	return fired
}
