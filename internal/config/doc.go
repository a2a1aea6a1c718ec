// Package config loads the orchestration service configuration from
// environment variables.
//
// Every value has a default suitable for running against agents on
// localhost, with sessions and events kept in memory.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
