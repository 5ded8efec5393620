package controllers

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/jobqueue"
)

// AdminQueueController exposes the job queue to operators.
type AdminQueueController struct {
	queueRepo repository.QueueRepository
	manager   *jobqueue.Manager
}

func NewAdminQueueController(queueRepo repository.QueueRepository, manager *jobqueue.Manager) *AdminQueueController {
	return &AdminQueueController{
		queueRepo: queueRepo,
		manager:   manager,
	}
}

// HandleQueueStats reports list sizes and the lifetime counters.
func (aqc *AdminQueueController) HandleQueueStats(c *fiber.Ctx) error {
	pending, err := aqc.queueRepo.GetListLength(jobqueue.JobQueueKey)
	if err != nil {
		return err
	}
	processing, err := aqc.queueRepo.GetListLength(jobqueue.JobProcessingKey)
	if err != nil {
		return err
	}
	delayed, err := aqc.queueRepo.GetSortedSetLength(jobqueue.JobDelayedKey)
	if err != nil {
		return err
	}
	stats, err := aqc.queueRepo.GetHash(jobqueue.JobStatsKey)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"delayed":    delayed,
		"stats":      stats,
		"running":    aqc.manager.IsRunning(),
	})
}

// HandleGetJob returns one job record.
func (aqc *AdminQueueController) HandleGetJob(c *fiber.Ctx) error {
	job, err := aqc.manager.GetQueue().GetJob(c.UserContext(), c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "job not found")
	}
	return c.JSON(job)
}

// HandleRequeueStale re-enqueues caption generation for stale photos.
func (aqc *AdminQueueController) HandleRequeueStale(c *fiber.Ctx) error {
	n, err := aqc.manager.RequeueStale(c.UserContext())
	if err != nil {
		fiberlog.Errorf("[Admin] Requeue failed after %d photos: %v", n, err)
		return err
	}
	fiberlog.Infof("[Admin] Requeued %d stale photos", n)
	return c.JSON(fiber.Map{"requeued": n})
}
