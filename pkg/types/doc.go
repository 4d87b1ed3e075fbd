// Package types defines the metrics document shared by the dashboard's
// source, sample generator, controller and alert engine. These are the
// canonical in-memory representations of one refresh cycle's data.
package types
