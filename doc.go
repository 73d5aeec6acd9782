// Package firebridge exposes Google Cloud Firestore collections to
// columnar SQL engines as Arrow tables.
//
// The bridge infers a stable Arrow schema from a sample of documents,
// pushes index-backed predicates into Firestore structured queries,
// streams result pages as Arrow record batches, and translates row
// streams into batched writes:
//
//	bridge := firebridge.New(firebridge.Config{})
//
//	reader, err := bridge.Scan(ctx, sessionID, "users", firebridge.ScanOptions{
//	    Credentials: auth.Options{ProjectID: "my-project", APIKey: key},
//	    Limit:       1000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer reader.Release()
//	for reader.Next() {
//	    process(reader.RecordBatch())
//	}
//
// Collections are addressed by slash-separated paths; a leading "~"
// selects a collection group (every collection with that name at any
// nesting depth). The synthetic __document_id column is always the
// first projected column.
//
// Credentials resolve, in priority order, from explicit options, the
// configured secret store, and GOOGLE_APPLICATION_CREDENTIALS. Setting
// FIRESTORE_EMULATOR_HOST redirects all traffic to an emulator over
// plain HTTP.
package firebridge
