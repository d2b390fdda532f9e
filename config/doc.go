// Package config provides configuration loading and validation for filedock.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (FILEDOCK_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with FILEDOCK_ prefix:
//   - server.port → FILEDOCK_SERVER_PORT
//   - objectstore.secret_key → FILEDOCK_OBJECTSTORE_SECRET_KEY
//   - auth.jwt_secret → FILEDOCK_AUTH_JWT_SECRET
//
// Durations accept Go duration strings such as "300s" or "5m".
//
// # Validation
//
//   - Port must be 1-65535
//   - database.type must be sqlite or postgres
//   - objectstore.backend must be s3 (bucket required) or stowry (endpoint required)
//   - presign.ttl and service.cleanup_timeout must be at least one second
//   - Log level must be debug, info, warn, or error
//
// auth.jwt_secret is not validated here because only the serve command
// needs it.
package config
