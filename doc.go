// Package filedock keeps file metadata in a relational store in agreement
// with file bytes held in an S3-compatible object store.
//
// Clients never stream bytes through filedock. They ask for a presigned
// upload URL, PUT the file to the object store, and the object store
// confirms the write through a notification. Deletion is requested through
// filedock and confirmed the same way.
//
// # Key Components
//
//   - FileService: upload, delete, list and view orchestration
//   - Reconciler: applies object store notifications to records
//   - Sweeper: confirms stale deletions and fails abandoned uploads
//   - RecordStore: interface for record persistence (PostgreSQL, SQLite)
//   - ObjectStore: interface for presigning and deleting objects (S3, Stowry)
//
// # Lifecycle
//
// Every record moves along a fixed graph:
//
//	PENDING   --ObjectConfirmedWritten--> AVAILABLE
//	PENDING   --DeleteRequested---------> DELETING
//	AVAILABLE --DeleteRequested---------> DELETING
//	DELETING  --ObjectConfirmedRemoved--> DELETED
//	PENDING   --UploadAbandoned---------> FAILED
//
// Updates are conditional on the source status, so a duplicated or stale
// event affects zero rows instead of corrupting state.
//
// # Example Usage
//
//	svc, err := filedock.NewFileService(repo, objects, filedock.ServiceConfig{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	slots, err := svc.CreateUploads(ctx, ownerID, []filedock.UploadRequest{
//	    {Filename: "report.pdf", Size: 1024, ContentType: "application/pdf"},
//	})
//
// See the http package for the REST API and the database package for store
// backends.
package filedock
