package taskname

const (
	// Goal tasks
	GoalContributionSettle = "goal:contribution:settle"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
