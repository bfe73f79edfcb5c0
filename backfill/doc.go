// Package backfill runs checkpointed CSV imports. A coordinator feeds
// rows from a stream through the configured row processor one at a time,
// persisting counters and the checkpoint after every row so an
// interrupted job resumes exactly where it stopped. Failed rows are
// isolated into a per-job error artifact instead of aborting the run.
package backfill
