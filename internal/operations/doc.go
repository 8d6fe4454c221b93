// Package operations runs download batches.
//
// A Downloader expands a date range into business dates and drives each date
// through fetch, extract, parse and write:
//
//	Pending -> Skipped
//	Pending -> Fetching -> Extracting -> Converting -> Done
//	any step -> Failed
//
// Every date produces exactly one domain.Outcome, delivered in ascending date
// order. A failing date never stops the batch; only an invalid range is fatal
// and it is reported before any network activity.
//
// Cancellation is cooperative: the batch context is checked between dates and
// a date already in flight runs to completion.
//
// With Workers > 1 dates are processed by a bounded errgroup. Outcomes are
// still released in order, and a process-wide ClaimRegistry keyed by output
// path keeps the exists-check and create step atomic across workers and
// concurrent batches.
//
// Example usage:
//
//	d, err := operations.NewDownloaderFromConfig(cfg.Download, operations.Deps{Logger: logger})
//	if err != nil {
//		return err
//	}
//	summary, err := d.Run(ctx, operations.Request{Start: from, End: to}, func(o domain.Outcome) {
//		fmt.Println(o.Status, o.Detail)
//	})
package operations
