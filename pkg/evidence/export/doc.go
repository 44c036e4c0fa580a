// Package export writes audit records to JSON or CSV and uploads the result
// to a sink.
//
// # Formats
//
//   - JSON: an array of full audit records
//   - CSV: one row per record with headline fields; list columns joined by ";"
//
// Both exporters also accept a record channel (ExportStream) for result sets
// that should not be held in memory.
//
// # Sinks
//
// A Sink stores a finished export and returns its location:
//
//   - FileSink: file:///<dir>/<export_id>.json
//   - S3Sink: s3://<bucket>/<prefix>/<export_id>.json (aws-sdk-go-v2)
//   - GCSSink: gs://<bucket>/<prefix>/<export_id>.json
//
// # Service
//
// Service ties both together for the export API:
//
//	svc := export.NewService(store, sink)
//	res, err := svc.Export(ctx, export.Request{Start: from, End: to})
//	// res.ExportID == "export_<uuid>", res.Location == "s3://..."
package export
