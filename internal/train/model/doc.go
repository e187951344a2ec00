// Package model defines the data that flows through the train pipeline:
// the raw per-train device payload, the processed-train record the task
// chain fills in, and the Manager that accumulates history across trains
// (correlation buffers, pump-probe figures of merit).
package model
