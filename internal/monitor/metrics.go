// Package monitor exposes Prometheus metrics for training and evaluation.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Training metrics
	TrainLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_train_loss",
		Help: "Most recent contrastive training loss",
	}, []string{"run"})

	TrainStepLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_train_step_latency_seconds",
		Help:    "Latency of one optimizer step",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"run"})

	EpochsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_epochs_completed_total",
		Help: "Total number of completed training epochs",
	}, []string{"run"})

	LearningRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_learning_rate",
		Help: "Learning rate applied at the last scheduler step",
	}, []string{"run"})

	GradNorm = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_grad_norm",
		Help: "Global gradient norm before clipping",
	}, []string{"run"})

	// Evaluation metrics
	RetrievalAccuracy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_retrieval_accuracy",
		Help: "Top-1 crossmodal retrieval accuracy per modality pair",
	}, []string{"run", "query", "key"})

	EvalLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_eval_latency_seconds",
		Help:    "Latency of one evaluation pass",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"run", "mode"})

	ProbeAUROC = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_probe_auroc",
		Help: "AUROC of the zero-shot probe per downstream task",
	}, []string{"run", "task"})

	// Embedding cache metrics
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_embedding_cache_hits_total",
		Help: "Embedding cache hits during evaluation",
	}, []string{"run"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_embedding_cache_misses_total",
		Help: "Embedding cache misses during evaluation",
	}, []string{"run"})

	// Launcher metrics
	RunsLaunched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_launched_total",
		Help: "Training runs started by the queue launcher",
	}, []string{"slot"})

	RunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_failed_total",
		Help: "Training runs that exited with an error",
	}, []string{"slot"})
)
