package services

// Queue names shared by the api process (producer) and the worker
// process (consumer). Both sides must build their queues with the same
// name against the same store.
const (
	ScanQueueName  = "scans"
	AlertQueueName = "alerts"
)
