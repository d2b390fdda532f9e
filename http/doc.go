// Package http exposes the file lifecycle over HTTP.
//
// # Routes
//
//	GET  /api/file                   list AVAILABLE files (limit, cursor)
//	GET  /api/file/view/{id}         presigned read URL
//	POST /api/file/upload            create upload slots
//	POST /api/file/delete            start deletion (202)
//	POST /api/webhooks/minio         S3/MinIO event notifications
//	GET  /api/webhooks/minio/health  webhook liveness
//	GET  /healthz                    record store ping
//	GET  /metrics                    prometheus metrics
//
// # Authentication
//
// The /api/file routes require an HS256 bearer token. The owner id is read
// from the claim named by AuthConfig.UserClaim (userId by default) and made
// available through OwnerFromContext. A missing token yields 401; a token
// that fails verification yields 403.
//
// The webhook route optionally checks a shared bearer token, matching
// MinIO's auth_token setting for webhook targets.
//
// # Errors
//
// Errors are JSON objects of the form {"error": code, "message": text}.
// filedock.ErrInvalidRequest maps to 400, filedock.ErrPermissionDenied to
// 403 and filedock.ErrStorageUnavailable to 503. Anything else is 500.
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    Auth: http.AuthConfig{JWTSecret: secret},
//	}, service, reconciler)
//	srv := &nethttp.Server{Addr: ":8080", Handler: handler.Router()}
package http
