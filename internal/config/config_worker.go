package config

// WorkerConfig configures cmd/worker, the job-queue consumer pool.
// cmd/orchestrator never reads this section.
type WorkerConfig struct {
	// OrchestratorURL is the base URL of a running cmd/orchestrator
	// process's API listener (e.g. "http://orchestrator:8080"). Required
	// for cmd/worker to start; left unvalidated here since
	// cmd/orchestrator shares this Config type and has no use for it.
	OrchestratorURL string `yaml:"orchestrator_url"`
	// Concurrency is how many goroutines concurrently dequeue and
	// dispatch jobs.
	Concurrency int `yaml:"concurrency"`
}

func applyWorkerDefaults(cfg *WorkerConfig) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
}
