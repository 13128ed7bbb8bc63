// Package bootstrap runs a Gustav process: it validates the typed config,
// builds the logger, starts registered components in order, runs lifecycle
// hooks and shuts everything down on SIGINT/SIGTERM.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(store)
//	app.RegisterComponent(httpServer)
//	return app.Run(ctx)
//
// RunTask gives one-shot commands the same lifecycle.
package bootstrap
