package tasks

// TaskSchedulerInterface is the run trigger used by the API and main.
//
//	scheduler := NewScheduler(1, 1, 30*time.Minute)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewCrawlTask(names, crawler.Run, store.Runs()))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Busy() bool
}
