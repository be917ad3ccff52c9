// Package hotspot finds congestion hot spots in a batch of GPS samples.
//
// Samples are standardized per batch on (latitude, longitude, speed), grouped
// by DBSCAN into density-connected clusters with noise rejection, and each
// cluster is summarized by size, flat centroid and mean speed. Independently,
// every sample is flagged as a micro-stop when it moves slower than a fixed
// threshold. An AlertConfig then selects the clusters that warrant a
// notification; delivering it is left to the caller.
//
// Cluster ids are only meaningful within one batch.
package hotspot
