// Package bootstrap wires configuration, catalogs and the evaluation pipeline
// into a runnable application. It keeps the initialization logic out of the
// CLI so it can be tested on its own.
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    return err
//	}
//	app, err := bootstrap.NewApp(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer app.Shutdown()
//
//	ctx, stop := bootstrap.SignalContext(context.Background())
//	defer stop()
//	return app.RunWatch(ctx)
package bootstrap
