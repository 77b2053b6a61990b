package mq

// 习惯生命周期事件的 routing key
const (
	RoutingKeyHabitPlanted   = "habit.planted"
	RoutingKeyHabitWatered   = "habit.watered"
	RoutingKeyHabitBloomed   = "habit.bloomed"
	RoutingKeyHabitRemoved   = "habit.removed"
	RoutingKeyHabitsImported = "habits.imported"
)

// HabitEvent 单个习惯变更时发布的消息体
type HabitEvent struct {
	HabitID int64   `json:"habit_id"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
	At      string  `json:"at"`
	TraceID string  `json:"trace_id,omitempty"`
}

// ImportEvent 启动导入替换整个集合后发布
type ImportEvent struct {
	Count   int    `json:"count"`
	At      string `json:"at"`
	TraceID string `json:"trace_id,omitempty"`
}
