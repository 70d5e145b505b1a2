package config

import (
	"os"
	"strconv"
	"sync"
)

type WorkerConfig struct {
	PollIntervalMs   int
	StageConcurrency int
	TaskLeaseMs      int
	Provider         string // "gemini" (default) or "openrouter"
}

var (
	workerConfig *WorkerConfig
	workerOnce   sync.Once
)

func LoadWorkerConfig() *WorkerConfig {
	workerOnce.Do(func() {
		provider := os.Getenv("GENERATION_PROVIDER")
		if provider == "" {
			provider = "gemini"
		}
		workerConfig = &WorkerConfig{
			PollIntervalMs:   envInt("WORKER_POLL_INTERVAL_MS", 1000),
			StageConcurrency: envInt("WORKER_STAGE_CONCURRENCY", 5),
			TaskLeaseMs:      envInt("WORKER_TASK_LEASE_MS", 600000),
			Provider:         provider,
		}
	})
	return workerConfig
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
