package graph

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// uploadWorkerCount bounds the CPU-side staging pool size; uploads are small,
// independent byte copies so a handful of persistent workers is plenty even for
// graphs with many initial-bytes resources.
const uploadWorkerCount = 4

// Graph is Builder.Compile's output: a fixed step list ready to replay against a
// command recorder every frame, plus the one-time upload prologue and terminal
// barrier set (spec §1 "compiled, replayable command sequence").
type Graph struct {
	steps    []compiledStep
	terminal []rhi.Barrier
	uploads  []uploadJob
	memory   rhi.DeviceMemory
	device   rhi.Device

	uploadedOnce bool
	mu           sync.Mutex
}

// Execute replays the compiled graph against rec: the upload prologue (first
// Execute call only), then each pass's barriers, pipeline/descriptor-set binds,
// and recording closure in declaration order, and finally the terminal barrier
// set that reconciles external resources to their declared output states
// (spec §4.4, §4.7). This is C10.
//
// Execute returns a Fence tied to this submission (spec §5, §6: "fences and
// semaphores are exposed at the executor boundary so the caller may pipeline
// submit/wait"), so the caller can poll or wait on GPU completion before
// reusing resources this submission touched — e.g. before presenting a
// swapchain image or recycling a staging buffer. The fence is created even
// when Execute itself fails early, unless device.CreateFence fails first.
func (g *Graph) Execute(rec rhi.CommandRecorder) (rhi.Fence, error) {
	fence, err := g.device.CreateFence()
	if err != nil {
		return nil, rgerr.Wrap(rgerr.KindAllocation, "submission fence", err)
	}

	if err := rec.Begin(); err != nil {
		return fence, rgerr.Wrap(rgerr.KindDeclaration, "command recorder begin", err)
	}

	g.mu.Lock()
	needsUpload := !g.uploadedOnce
	g.uploadedOnce = true
	g.mu.Unlock()
	if needsUpload {
		if err := g.runUploadPrologue(rec); err != nil {
			return fence, err
		}
	}

	for _, step := range g.steps {
		if len(step.barriers) > 0 {
			rec.PipelineBarrier(step.barriers)
		}

		switch step.pass.hint {
		case Raster:
			if err := rec.BeginRenderPass(step.framebuffer); err != nil {
				return fence, rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("pass %q: begin render pass", step.pass.name), err)
			}
			fbDesc := step.framebuffer.Description()
			rec.SetViewport(0, 0, float32(fbDesc.Width), float32(fbDesc.Height), 0, 1)
			rec.SetScissor(0, 0, fbDesc.Width, fbDesc.Height)
			if step.pipeline != nil {
				rec.BindPipeline(step.pipeline)
				bindDescriptorSets(rec, step.resources)
			}
			if err := runClosure(rec, step); err != nil {
				return fence, err
			}
			if err := rec.EndRenderPass(); err != nil {
				return fence, rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("pass %q: end render pass", step.pass.name), err)
			}

		case Compute, RayTracing:
			if step.pipeline != nil {
				rec.BindPipeline(step.pipeline)
				bindDescriptorSets(rec, step.resources)
			}
			if err := runClosure(rec, step); err != nil {
				return fence, err
			}

		default: // Immediate
			if err := runClosure(rec, step); err != nil {
				return fence, err
			}
		}
	}

	if len(g.terminal) > 0 {
		rec.PipelineBarrier(g.terminal)
	}

	if err := rec.End(fence); err != nil {
		return fence, rgerr.Wrap(rgerr.KindDeclaration, "command recorder end", err)
	}
	return fence, nil
}

// runClosure invokes a pass's recording closure, logging (but not otherwise
// handling) a failure before wrapping it — every pass kind reports a closure
// failure the same way, not just Raster passes.
func runClosure(rec rhi.CommandRecorder, step compiledStep) error {
	if err := step.pass.closure(rec, step.resources); err != nil {
		log.Printf("rendergraph: pass %q closure failed: %v", step.pass.name, err)
		return rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("pass %q", step.pass.name), err)
	}
	return nil
}

// bindDescriptorSets issues one BindDescriptorSet call per set index C9 built a
// descriptor set for, in ascending order, so binding order never depends
// on map iteration.
func bindDescriptorSets(rec rhi.CommandRecorder, pr *PassResources) {
	if pr == nil || len(pr.sets) == 0 {
		return
	}
	var maxSet uint32
	for i := range pr.sets {
		if i > maxSet {
			maxSet = i
		}
	}
	for i := uint32(0); i <= maxSet; i++ {
		if set, ok := pr.sets[i]; ok {
			rec.BindDescriptorSet(i, set)
		}
	}
}

// runUploadPrologue issues every pending initial-bytes upload's
// Undefined→TransferDst barrier and then its copy command, before the graph's
// first real pass runs; the TransferDst→first-real-state barrier is planned by
// C8 into the pre-pass batch of the resource's first pass. CPU-side
// per-job prep (validating the byte payload matches the resource's declared
// footprint) fans out across a small persistent worker pool — the same
// submit/WaitGroup pattern the animator prep phase uses (spec's domain-stack
// wiring calls for the worker pool here); the GPU-visible copy commands
// themselves are still recorded serially since CommandRecorder is not
// concurrency-safe.
func (g *Graph) runUploadPrologue(rec rhi.CommandRecorder) error {
	if len(g.uploads) == 0 {
		return nil
	}

	pool := worker.NewDynamicWorkerPool(uploadWorkerCount, len(g.uploads), time.Second)
	var wg sync.WaitGroup
	errs := make([]error, len(g.uploads))

	for i, job := range g.uploads {
		wg.Add(1)
		idx, jobCap := i, job
		pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				errs[idx] = validateUploadJob(jobCap)
				return nil, nil
			},
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("upload job %d", i), err)
		}
	}

	var barriers []rhi.Barrier
	for _, job := range g.uploads {
		if job.isImage {
			barriers = append(barriers, rhi.Barrier{Image: job.image, Before: rhi.StateUndefined, After: rhi.StateTransferDst, Range: job.fullRng})
		} else {
			barriers = append(barriers, rhi.Barrier{Buffer: job.buffer, Before: rhi.StateUndefined, After: rhi.StateTransferDst})
		}
	}
	rec.PipelineBarrier(barriers)

	for _, job := range g.uploads {
		staging, err := g.device.CreateStagingBuffer(job.bytes)
		if err != nil {
			return rgerr.Wrap(rgerr.KindAllocation, "staging buffer for upload", err)
		}
		if job.isImage {
			rec.CopyBufferToImage(staging, job.image, job.fullRng)
		} else {
			rec.CopyBuffer(staging, job.buffer, uint64(len(job.bytes)))
		}
	}

	return nil
}

// validateUploadJob is the CPU-side prep work fanned out across the staging
// pool: confirming the caller's initial-bytes payload is non-empty. The actual
// byte transfer happens device-side once the copy command is recorded; this
// step exists to fail fast on an obviously wrong payload before any GPU work is
// queued.
func validateUploadJob(job uploadJob) error {
	if len(job.bytes) == 0 {
		return fmt.Errorf("empty initial-bytes payload")
	}
	return nil
}
