package task

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// SlotCount 时间轮槽位数量
const SlotCount = 60

// bucket 单个槽位，同 ID 的任务只保留最后一次
type bucket struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func (b *bucket) put(task *Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tasks == nil {
		b.tasks = make(map[string]*Task)
	}
	b.tasks[task.ID] = task
}

func (b *bucket) remove(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tasks[taskID]; !ok {
		return false
	}
	delete(b.tasks, taskID)
	return true
}

// drain 取出全部任务，按 ID 排序保证派发顺序稳定
func (b *bucket) drain() []*Task {
	b.mu.Lock()
	tasks := make([]*Task, 0, len(b.tasks))
	for _, task := range b.tasks {
		tasks = append(tasks, task)
	}
	b.tasks = nil
	b.mu.Unlock()

	if len(tasks) == 0 {
		return nil
	}
	slices.SortFunc(tasks, func(x, y *Task) int { return strings.Compare(x.ID, y.ID) })
	return tasks
}

func (b *bucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

// TimeWheel 时间轮，每个 tick 前进一格
type TimeWheel struct {
	slots       [SlotCount]bucket
	currentSlot int
	slotMu      sync.RWMutex
	tick        time.Duration
}

// NewTimeWheel 创建时间轮，tick <= 0 时为 1 秒
func NewTimeWheel(tick time.Duration) *TimeWheel {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeWheel{tick: tick}
}

// normalizeDelay 把延迟限制在 1..SlotCount
func normalizeDelay(delay int) int {
	if delay < 1 || delay > SlotCount {
		return 1
	}
	return delay
}

// AddTask 添加任务到时间轮
func (tw *TimeWheel) AddTask(task *Task) {
	task.Delay = normalizeDelay(task.Delay)

	tw.slotMu.RLock()
	targetSlot := (tw.currentSlot + task.Delay) % SlotCount
	tw.slotMu.RUnlock()

	tw.slots[targetSlot].put(task)
}

// RemoveTask 从全部槽位中删除任务
func (tw *TimeWheel) RemoveTask(taskID string) bool {
	removed := false
	for i := 0; i < SlotCount; i++ {
		if tw.slots[i].remove(taskID) {
			removed = true
		}
	}
	return removed
}

// Tick 推进一格，返回到期任务
func (tw *TimeWheel) Tick() []*Task {
	tw.slotMu.Lock()
	tw.currentSlot = (tw.currentSlot + 1) % SlotCount
	currentSlot := tw.currentSlot
	tw.slotMu.Unlock()

	return tw.slots[currentSlot].drain()
}

// Interval 每格时长
func (tw *TimeWheel) Interval() time.Duration {
	return tw.tick
}

// CurrentSlot 当前槽位索引
func (tw *TimeWheel) CurrentSlot() int {
	tw.slotMu.RLock()
	defer tw.slotMu.RUnlock()

	return tw.currentSlot
}

// TotalTaskCount 所有槽位的任务总数
func (tw *TimeWheel) TotalTaskCount() int {
	total := 0
	for i := 0; i < SlotCount; i++ {
		total += tw.slots[i].len()
	}
	return total
}
