package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"polydoc/config"
	"polydoc/models"
	"polydoc/orchestrator"
)

// Pool is the host runtime for conversion jobs: N workers pull tasks off
// the pending queue and run them through the orchestrator. Jobs for
// different files execute concurrently; languages within one job stay
// sequential inside RunJob.
type Pool struct {
	config      *config.Config
	redisClient *redis.Client
	orch        *orchestrator.Orchestrator
}

func NewPool(cfg *config.Config, redisClient *redis.Client, orch *orchestrator.Orchestrator) *Pool {
	return &Pool{
		config:      cfg,
		redisClient: redisClient,
		orch:        orch,
	}
}

// Enqueue pushes an accepted task onto the pending queue. This is the
// orchestrator.TaskQueue implementation.
func (p *Pool) Enqueue(ctx context.Context, task models.ConversionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.redisClient.LPush(ctx, p.config.PendingQueue, payload).Err()
}

func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	log.Printf("[Worker %d] Starting", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker %d] Shutting down", workerID)
			return
		default:
			// Atomic pop from pending and push to processing
			result, err := p.redisClient.BRPopLPush(
				ctx,
				p.config.PendingQueue,
				p.config.ProcessingQueue,
				30*time.Second,
			).Result()

			if err == redis.Nil {
				// Timeout, no tasks available
				continue
			}

			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("[Worker %d] Redis error: %v", workerID, err)
				time.Sleep(5 * time.Second)
				continue
			}

			var task models.ConversionTask
			if err := json.Unmarshal([]byte(result), &task); err != nil {
				log.Printf("[Worker %d] Failed to parse task: %v", workerID, err)
				// Dead-letter malformed payloads; they can never run.
				p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, result)
				p.redisClient.LPush(ctx, p.config.FailedQueue, result)
				continue
			}

			p.processTask(ctx, workerID, task, result)
		}
	}
}

func (p *Pool) processTask(ctx context.Context, workerID int, task models.ConversionTask, taskJSON string) {
	log.Printf("[Worker %d] Processing job %d (file %d, %d languages)",
		workerID, task.JobID, task.FileID, len(task.TargetLanguages))

	startTime := time.Now()

	err := p.orch.RunJob(ctx, task)

	// Failure handling is the orchestrator's job (the ledger already
	// records failed status and the error); the queue entry is done
	// either way. No automatic retry: a new convert request is the
	// caller's retry mechanism.
	p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, taskJSON)

	if err != nil {
		log.Printf("[Worker %d] Job %d failed after %.2fs: %v",
			workerID, task.JobID, time.Since(startTime).Seconds(), err)
		return
	}
	log.Printf("[Worker %d] Job %d completed successfully (%.2fs)",
		workerID, task.JobID, time.Since(startTime).Seconds())
}

// RecoveryLoop periodically sweeps the processing queue for entries whose
// worker died mid-job, so a crash cannot leave a file stuck in processing.
func (p *Pool) RecoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	log.Println("[Recovery] Starting stale job recovery loop")

	for {
		select {
		case <-ctx.Done():
			log.Println("[Recovery] Shutting down")
			return
		case <-ticker.C:
			p.recoverStaleTasks(ctx)
		}
	}
}

func (p *Pool) recoverStaleTasks(ctx context.Context) {
	entries, err := p.redisClient.LRange(ctx, p.config.ProcessingQueue, 0, -1).Result()
	if err != nil {
		log.Printf("[Recovery] Failed to read processing queue: %v", err)
		return
	}

	slack := time.Duration(p.config.StaleJobAge) * time.Second
	failed := 0
	for _, entry := range entries {
		var task models.ConversionTask
		if err := json.Unmarshal([]byte(entry), &task); err != nil {
			p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, entry)
			p.redisClient.LPush(ctx, p.config.FailedQueue, entry)
			continue
		}

		if time.Since(task.CreatedAt) > staleAfter(task, slack) {
			p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, entry)
			p.orch.AbandonTask(ctx, task, "conversion worker lost")
			failed++
		}
	}

	if failed > 0 {
		log.Printf("[Recovery] Failed %d stale jobs", failed)
	}
}

// staleAfter is how long a processing entry may age before the sweep
// declares its worker lost. A live job legitimately runs up to one timeout
// per target language, so the bound scales with the task; the slack on top
// also absorbs time the task spent waiting in the pending queue, since
// CreatedAt is stamped at enqueue.
func staleAfter(task models.ConversionTask, slack time.Duration) time.Duration {
	budget := time.Duration(task.Timeout) * time.Second * time.Duration(len(task.TargetLanguages))
	return budget + slack
}
