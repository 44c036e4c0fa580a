// Package recorder builds audit records at the end of the governance
// pipeline and hands them to a storage backend.
//
// # Recording Flow
//
//  1. The pipeline finishes (or the screener blocks) and calls Record
//  2. The recorder hashes prompt and response, detects anomalies and
//     computes retention from the active knowledge pack
//  3. A canonical digest is computed over the finished record
//  4. The record is written synchronously or enqueued for the background
//     worker, depending on Config.Async
//
// Recording never fails the request. A record that cannot be written or
// enqueued is logged and the returned summary carries an error_<timestamp>
// id.
//
// # Basic Usage
//
//	rec := recorder.New(store, packStore, &recorder.Config{
//	    Async:       true,
//	    AsyncBuffer: 1000,
//	})
//	defer rec.Close()
//
//	summary := rec.Record(ctx, recorder.Entry{Request: req, Risk: risk})
package recorder
