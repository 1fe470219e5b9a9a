package execution

import (
	"context"
	"sync"

	"github.com/evalforge/evalforge/pkg/models"
)

// BatchTask is one entry of an ExecuteBatch call.
type BatchTask struct {
	TaskType models.TaskType
	Request  models.AgentRequest
	Context  models.AgentContext
	Options  Options
}

// ExecuteBatch runs independent tasks with bounded concurrency: the task list
// is partitioned into chunks of size concurrency and each chunk is awaited
// before the next one starts. Results are returned in input order.
func (s *Service) ExecuteBatch(ctx context.Context, tasks []BatchTask, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	results := make([]Result, len(tasks))

	for start := 0; start < len(tasks); start += concurrency {
		end := start + concurrency
		if end > len(tasks) {
			end = len(tasks)
		}

		var wg sync.WaitGroup

		for i := start; i < end; i++ {
			wg.Add(1)

			go func(idx int) {
				defer wg.Done()

				task := tasks[idx]
				results[idx] = s.Execute(ctx, task.TaskType, task.Request, task.Context, task.Options)
			}(i)
		}

		wg.Wait()
	}

	return results
}
