// Package app builds and runs the janitor application.
//
// New composes the application in a fixed order:
//
//  1. Load and validate the configuration
//  2. Compute the scheduled job list (run_loop every CHECK_INTERVAL)
//  3. Prepare the metrics directory: create it, remove stale *.db shards
//  4. Bind the extensions: store, moment, migrate, bootstrap, schema,
//     uploads, scheduler; then start the scheduler
//  5. Register the error pages, site routes, upload serving and the API
//     described by the Swagger document
//  6. Attach the rotating log file unless DEBUG or TESTING is set
//  7. Mount the Prometheus exposition at /metrics
//
// Every step is fatal on failure. The returned Application is served
// with Run, which stops on SIGINT or SIGTERM:
//
//	a, err := app.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := a.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package app
